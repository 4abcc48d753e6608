package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/events"
	"github.com/martijn/vmorch/internal/execution"
)

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"

	storePollInterval = 200 * time.Millisecond
)

var (
	runType   string
	runHost   string
	runDir    string
	runTarget string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run a command as a job and follow its output",
	Long: `Run a command in-process against the configured job store and print its
output as it arrives. Ctrl-C cancels the job. The exit code of the job becomes
the exit code of vmorch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		kind, err := execution.ParseKind(runType)
		if err != nil {
			return err
		}

		services, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer services.Close()

		req := execution.Request{
			ID:         services.Manager.NewJobID(),
			Command:    joinArgs(args),
			Kind:       kind,
			WorkingDir: runDir,
			HostAlias:  runHost,
			TargetRef:  runTarget,
		}

		// Subscribe before executing so the first events are not missed
		sub := services.Events.Subscribe(req.ID)
		defer sub.Close()

		id, err := services.Manager.Execute(ctx, req)
		if err != nil {
			return err
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt)
		defer signal.Stop(sigChan)

		f := &follower{
			out:      cmd.OutOrStdout(),
			errOut:   cmd.ErrOrStderr(),
			color:    isTerminal(cmd.OutOrStdout()),
			jobID:    id,
			repo:     services.Repo,
			manager:  services.Manager,
			canceled: sigChan,
		}
		return f.follow(ctx, sub)
	},
}

// follower prints the output of one job until it ends.
type follower struct {
	out      io.Writer
	errOut   io.Writer
	color    bool
	jobID    string
	lastSeq  int64
	repo     repository.JobRepository
	manager  *execution.Manager
	canceled <-chan os.Signal
}

func (f *follower) follow(ctx context.Context, sub *events.Subscription) error {
	for {
		select {
		case <-f.canceled:
			f.cancel(ctx)
		case e, ok := <-sub.Events():
			if !ok {
				// Evicted for falling behind; the store has the full transcript.
				return f.followStore(ctx)
			}
			switch e.Type {
			case events.JobLog:
				f.print(domain.Stream(e.Stream), e.Data)
				f.lastSeq = e.Seq
			case events.JobStarted:
				if e.Status == string(domain.JobStatusSpawned) {
					fmt.Fprintf(f.out, "Terminal spawned for job %s\n", f.jobID)
					return nil
				}
			case events.JobDone, events.JobError, events.JobCanceled:
				return f.finish(ctx)
			}
		}
	}
}

func (f *follower) followStore(ctx context.Context) error {
	ticker := time.NewTicker(storePollInterval)
	defer ticker.Stop()

	for {
		if err := f.drainLogs(ctx); err != nil {
			return err
		}
		job, err := f.repo.GetJob(ctx, f.jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return f.finish(ctx)
		}

		select {
		case <-f.canceled:
			f.cancel(ctx)
		case <-ticker.C:
		}
	}
}

func (f *follower) drainLogs(ctx context.Context) error {
	for {
		entries, err := f.repo.GetLogs(ctx, f.jobID, f.lastSeq, repository.MaxLogLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			f.print(e.Stream, e.Data)
			f.lastSeq = e.Seq
		}
		if len(entries) < repository.MaxLogLimit {
			return nil
		}
	}
}

func (f *follower) cancel(ctx context.Context) {
	if err := f.manager.Cancel(ctx, f.jobID); err != nil && !errors.Is(err, execution.ErrJobNotFound) {
		fmt.Fprintf(f.errOut, "failed to cancel job: %v\n", err)
	}
}

// finish flushes log entries that were persisted after the last event and
// converts the final status into the command result.
func (f *follower) finish(ctx context.Context) error {
	if err := f.drainLogs(ctx); err != nil {
		return err
	}

	job, err := f.repo.GetJob(ctx, f.jobID)
	if err != nil {
		return err
	}
	return jobResult(job)
}

func jobResult(job *domain.Job) error {
	switch job.Status {
	case domain.JobStatusSuccess, domain.JobStatusSpawned:
		return nil
	case domain.JobStatusCanceled:
		return &ExitError{Code: 130}
	}
	if job.ExitCode != nil && *job.ExitCode != 0 {
		return &ExitError{Code: *job.ExitCode}
	}
	return &ExitError{Code: 1}
}

func (f *follower) print(stream domain.Stream, data string) {
	w := f.out
	color := ""
	switch stream {
	case domain.StreamStderr:
		w, color = f.errOut, colorRed
	case domain.StreamSystem:
		w, color = f.errOut, colorYellow
		if !strings.HasSuffix(data, "\n") {
			data += "\n"
		}
	}

	if f.color && color != "" {
		fmt.Fprint(w, color+data+colorReset)
		return
	}
	fmt.Fprint(w, data)
}

// joinArgs rebuilds a command line from argv, quoting arguments that the
// command tokenizer would otherwise split.
func joinArgs(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		switch {
		case a == "":
			quoted[i] = "''"
		case !strings.ContainsAny(a, " \t\n'\""):
			quoted[i] = a
		case !strings.Contains(a, "'"):
			quoted[i] = "'" + a + "'"
		default:
			quoted[i] = `"` + a + `"`
		}
	}
	return strings.Join(quoted, " ")
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runType, "type", "t", string(execution.KindStream), "strategy: stream, ssh or terminal")
	runCmd.Flags().StringVar(&runHost, "host", "", "ssh host alias")
	runCmd.Flags().StringVarP(&runDir, "dir", "d", "", "working directory")
	runCmd.Flags().StringVar(&runTarget, "target", "", "target reference recorded with the job")
}
