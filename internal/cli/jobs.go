package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/api/util"
	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
)

var (
	jobsQuery   string
	jobsOrder   string
	jobsPage    int
	jobsPerPage int

	logsAfter int64
	logsLimit int

	apiURL   string
	apiToken string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control jobs",
	Long:  "List recorded jobs, read their transcripts and cancel jobs running on a server",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Example: `  vmorch jobs list --query "status|failed"
  vmorch jobs list --query "target_ref|vm-1" --order "started_at|desc"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listFilter, err := util.ParseListFilter(jobsQuery, jobsOrder, jobsPage, jobsPerPage,
			repository.JobQueryFields, repository.JobOrderFields)
		if err != nil {
			return err
		}
		filter := repository.JobFilter{ListFilter: listFilter}

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		jobs, err := services.Jobs.ListJobs(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTRATEGY\tEXIT\tTARGET\tSTARTED\tCOMMAND")
		for _, job := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				job.ID,
				job.Status,
				job.Strategy,
				formatExitCode(job.ExitCode),
				valueOrDash(job.TargetRef),
				job.StartedAt.Local().Format(time.DateTime),
				truncate(job.Command, 60),
			)
		}
		return w.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		job, err := services.Jobs.GetJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("job %s: %w", args[0], err)
		}

		printJob(cmd, job)
		return nil
	},
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Print the transcript of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if logsAfter < 0 {
			return fmt.Errorf("--after must not be negative")
		}

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		entries, err := services.Jobs.GetLogs(cmd.Context(), args[0], logsAfter, repository.ClampLogLimit(logsLimit))
		if err != nil {
			return fmt.Errorf("job %s: %w", args[0], err)
		}

		for _, e := range entries {
			w := cmd.OutOrStdout()
			if e.Stream != domain.StreamStdout {
				w = cmd.ErrOrStderr()
			}
			fmt.Fprint(w, e.Data)
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job running on a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewJobClient(serverURL(), apiToken)

		resp, err := client.CancelJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", resp.JobID, resp.Status)
		return nil
	},
}

var jobsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List jobs running on a server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewJobClient(serverURL(), apiToken)

		resp, err := client.ActiveJobs(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list active jobs: %w", err)
		}

		if len(resp.Items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active jobs")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTRATEGY\tSTARTED\tCOMMAND")
		for _, a := range resp.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				a.JobID, a.Strategy, a.StartedAt.Local().Format(time.DateTime), truncate(a.Command, 60))
		}
		return w.Flush()
	},
}

func printJob(cmd *cobra.Command, job *domain.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", job.ID)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Strategy:  %s\n", job.Strategy)
	fmt.Fprintf(out, "Command:   %s\n", job.Command)
	fmt.Fprintf(out, "Target:    %s\n", valueOrDash(job.TargetRef))
	fmt.Fprintf(out, "Exit code: %s\n", formatExitCode(job.ExitCode))
	fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.DateTime))
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s (%s)\n",
			job.FinishedAt.Local().Format(time.DateTime),
			job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
	} else {
		fmt.Fprintln(out, "Finished:  -")
	}
}

// serverURL is the --url flag, or the configured API address.
func serverURL() string {
	if apiURL != "" {
		return apiURL
	}
	scheme := "http"
	if cfg.SSLCert != "" {
		scheme = "https"
	}
	host := cfg.APIHost
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, cfg.APIPort)
}

func formatExitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func valueOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsLogsCmd, jobsCancelCmd, jobsActiveCmd)

	jobsListCmd.Flags().StringVarP(&jobsQuery, "query", "q", "", "filter, e.g. \"status|failed,strategy|ssh\"")
	jobsListCmd.Flags().StringVarP(&jobsOrder, "order", "o", "", "ordering, e.g. \"started_at|desc\"")
	jobsListCmd.Flags().IntVar(&jobsPage, "page", 1, "page number")
	jobsListCmd.Flags().IntVar(&jobsPerPage, "per-page", util.DefaultPerPage, "jobs per page")

	jobsLogsCmd.Flags().Int64Var(&logsAfter, "after", 0, "only print entries after this sequence number")
	jobsLogsCmd.Flags().IntVar(&logsLimit, "limit", repository.DefaultLogLimit, "maximum number of entries")

	for _, c := range []*cobra.Command{jobsCancelCmd, jobsActiveCmd} {
		c.Flags().StringVar(&apiURL, "url", "", "server URL (default from api_host and api_port)")
		c.Flags().StringVar(&apiToken, "token", os.Getenv("VMORCH_TOKEN"), "API token (env VMORCH_TOKEN)")
	}
}
