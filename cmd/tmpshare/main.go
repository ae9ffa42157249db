package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/spf13/cobra"

	"tmpshare/internal/app"
	"tmpshare/internal/config"
	"tmpshare/internal/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tmpshare: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tmpshare",
		Short:        "Temporary file sharing: links expire a fixed time after the first download",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runServe,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and the background reaper",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Remove expired files once and exit",
			Args:  cobra.NoArgs,
			RunE:  runSweep,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply PostgreSQL schema migrations",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "delete <file_id>",
			Short: "Remove one file and its record immediately",
			Args:  cobra.ExactArgs(1),
			RunE:  runDelete,
		},
	)
	return cmd
}

// loadConfig reads and validates the environment and initialises logging.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logger.InitLogger(&cfg.Logger)
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(cmd.Context())
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.Engine().Sweep(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired file(s)\n", removed)
	return err
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MetadataBackend != config.BackendPostgres {
		return fmt.Errorf("migrate needs TMPSHARE_METADATA_BACKEND=%s, got %q", config.BackendPostgres, cfg.MetadataBackend)
	}
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Engine().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
