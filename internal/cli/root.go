package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/archive"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/core/service"
	"github.com/martijn/vmorch/internal/events"
	"github.com/martijn/vmorch/internal/execution"
	"github.com/martijn/vmorch/internal/infrastructure/sqlstore"
	"github.com/martijn/vmorch/internal/logger"
	"github.com/martijn/vmorch/internal/observability"
	"github.com/martijn/vmorch/internal/presets"
	"github.com/martijn/vmorch/internal/sshconfig"
	"github.com/martijn/vmorch/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
)

// ExitError carries the exit code of a job run from the command line.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("job exited with code %d", e.Code)
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vmorch",
	Short: "vmorch - run commands on local and remote machines",
	Long: `vmorch runs shell commands on behalf of remote clients and tracks them as jobs.

It provides:
- Local execution with live stdout/stderr streaming
- Remote execution over SSH using ~/.ssh/config host aliases
- Interactive commands in a detached terminal window
- A persistent job history with full transcripts
- REST, server-sent events and WebSocket interfaces`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log, err = logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		slog.SetDefault(log)

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultConfigPath+")")
}

// initServices initializes all services
func initServices(ctx context.Context) (*Services, error) {
	// Initialize job store
	db, err := sqlstore.New(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job store: %w", err)
	}
	repo := sqlstore.NewJobRepository(db)

	catalog, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		db.Close()
		return nil, err
	}

	onEvict, err := observability.EventDropCounter()
	if err != nil {
		db.Close()
		return nil, err
	}
	broadcaster := events.NewBroadcaster(cfg.EventBuffer, log, onEvict)

	resolver := sshconfig.NewResolver(cfg.SSHConfigPath, cfg.SSHConnectTimeout, log)

	var archiver execution.Archiver
	if cfg.ArchiveEnabled() {
		a, err := archive.New(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			Bucket:    cfg.ArchiveBucket,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			UseSSL:    cfg.ArchiveUseSSL,
		}, repo, log)
		if err != nil {
			db.Close()
			return nil, err
		}
		archiver = a
	}

	manager, err := execution.NewManager(execution.Options{
		Store:     repo,
		Publisher: broadcaster,
		Strategies: []execution.Strategy{
			execution.NewLocalStrategy(cfg.DefaultWorkingDir),
			execution.NewSSHStrategy(resolver, cfg.SSHBinary, cfg.SSHConnectTimeout),
			execution.NewTerminalStrategy(cfg.TerminalShell, cfg.DefaultWorkingDir),
		},
		Archiver: archiver,
		Logger:   log,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create execution manager: %w", err)
	}

	return &Services{
		DB:          db,
		Repo:        repo,
		Jobs:        service.NewJobService(repo),
		Events:      broadcaster,
		Resolver:    resolver,
		Presets:     catalog,
		Tokens:      service.NewTokenService(cfg.JWTSecretKey, cfg.JWTAlgorithm),
		Manager:     manager,
		ShutdownTTL: cfg.ShutdownTimeout,
	}, nil
}

// Services holds all initialized services
type Services struct {
	DB       *sqlstore.DB
	Repo     repository.JobRepository
	Jobs     *service.JobService
	Events   *events.Broadcaster
	Resolver *sshconfig.Resolver
	Presets  *presets.Catalog
	Tokens   *service.TokenService
	Manager  *execution.Manager

	ShutdownTTL time.Duration
}

// Close stops running jobs and closes all resources
func (s *Services) Close() {
	if s.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTTL)
		defer cancel()
		if err := s.Manager.Shutdown(ctx); err != nil {
			log.Warn("execution manager shutdown incomplete", "error", err)
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
