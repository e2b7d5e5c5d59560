package traffic

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/okian/formwizard/pkg/logger"
	"github.com/spf13/cobra"
)

// NewCommand returns the form-traffic root command.
func NewCommand() *cobra.Command {
	cfg := DefaultConfig()
	var logFormat, logLevel string

	cmd := &cobra.Command{
		Use:   "form-traffic",
		Short: "Simulate visitors filling in a tracked form",
		Long: `form-traffic generates realistic form sessions (focus, edits, hesitation,
pointer movement, submits and abandons), sends them to a formwizard server over
HTTP or NATS and prints the analytics the server derived from them.`,
		Example: `  form-traffic --sessions 500 --abandon-rate 0.5
  form-traffic --transport nats --nats-url nats://localhost:4222`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the formwizard server")
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "event transport: http or nats")
	f.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL for the nats transport")
	f.StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "NATS subject the server consumes")
	f.StringVar(&cfg.FormID, "form", cfg.FormID, "form id to simulate")
	f.StringSliceVar(&cfg.Fields, "fields", cfg.Fields, "field ids in tab order")
	f.StringVar(&cfg.SlowField, "slow-field", cfg.SlowField, "field visitors struggle with")
	f.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "number of visitor sessions")
	f.Float64Var(&cfg.AbandonRate, "abandon-rate", cfg.AbandonRate, "share of sessions that abandon the form")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent publishers")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per request timeout")
	f.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "wait before reading analytics")
	f.Uint64Var(&cfg.Seed, "seed", 0, "random seed, 0 for a random run")
	f.StringVar(&cfg.OutputFile, "output", "", "write generated events to this JSON file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every failed session")
	f.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func run(ctx context.Context, cfg *Config) error {
	r, err := NewRunner(cfg)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx)
	return err
}
