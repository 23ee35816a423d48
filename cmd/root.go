// Package cmd defines the siteaudit command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/app"
	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/config"
	"github.com/JakeFAU/siteaudit/internal/logging"
	"github.com/JakeFAU/siteaudit/internal/report"
)

// exitNoResults is returned when the run cannot produce a report at all.
const exitNoResults = 3

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// Auditor is what the root command drives. Tests swap in a fake through
// newAuditor.
type Auditor interface {
	Registry() audit.Registry
	Run(ctx context.Context, input string, observer audit.Observer, pretty bool) (report.Run, error)
	Close()
}

// newAuditor is the application factory.
var newAuditor = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Auditor, error) {
	return app.New(ctx, cfg, logger)
}

// loadConfig reads configuration for one invocation.
var loadConfig = config.Load

// session carries what PersistentPreRunE prepared to the subcommands.
type session struct {
	cfg    config.Config
	logger *zap.Logger
}

type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	cfgFile  string
	pretty   bool
	exitCode int
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteaudit [--pretty] [--config file] <domain-or-url>",
		Short: "Audit a website against a fixed battery of SEO and health checks.",
		Long: `siteaudit runs every registered check against one site and prints a JSON
report with one result per check. Progress and a summary go to stderr.

The exit code reflects the worst status: 0 PASS, 1 WARN, 2 FAIL, 3 ERROR or
no report at all.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewWithConfig(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if s, ok := cmd.Context().Value(sessionKey).(*session); ok && s != nil {
				_ = s.logger.Sync()
			}
		},

		RunE: c.runAudit,
	}

	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.Flags().BoolVar(&c.pretty, "pretty", false, "pretty-print the JSON report")

	cmd.AddCommand(newChecksCmd())
	return cmd
}

func (c *cli) runAudit(cmd *cobra.Command, args []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	auditor, err := newAuditor(cmd.Context(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize audit services: %w", err)
	}
	defer auditor.Close()

	run, err := auditor.Run(cmd.Context(), args[0], newProgress(c.stderr), c.pretty)
	if err != nil {
		return err
	}
	writeSummary(c.stderr, run)
	if _, err := c.stdout.Write(run.Payload); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	c.exitCode = run.ExitCode
	return nil
}

func resolveSession(ctx context.Context) (*session, error) {
	s, ok := ctx.Value(sessionKey).(*session)
	if !ok || s == nil {
		return nil, errors.New("session not initialized")
	}
	return s, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitNoResults
	}
	return c.exitCode
}
