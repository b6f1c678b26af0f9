package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/metrics"
	"github.com/user/collector/internal/render"
	"github.com/user/collector/internal/scheduler"
	"github.com/user/collector/internal/validate"
)

func newRunCommand() *cobra.Command {
	var reportFile string

	cmd := &cobra.Command{
		Use:   "run ID|NAME...",
		Short: "Run templates once, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ids, err := a.templateIDs(cmd.Context(), args)
			if err != nil {
				return err
			}

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			summary := scheduler.New(runner, scheduler.Options{Logger: logger}).RunNow(cmd.Context(), ids)
			if err := printReport(reportFile, summary, time.Time{}); err != nil {
				return err
			}

			if failed := len(summary.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d templates failed", failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportFile, "report", "", "pongo2 template file for the run report")
	return cmd
}

func newAutoRunCommand() *cobra.Command {
	var (
		interval   time.Duration
		cronExpr   string
		listen     string
		reportFile string
	)

	cmd := &cobra.Command{
		Use:   "auto-run ID|NAME...",
		Short: "Run templates repeatedly until interrupted",
		Long: color.GreenString(`Run templates repeatedly until interrupted.

Templates run one at a time in the order given. With --interval the first pass
starts immediately; with --cron the worker waits for the first activation.

Examples:
  collector auto-run daily pump --interval 30s
  collector auto-run 1 2 --cron "*/5 * * * *" --listen :9090`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cmd.Flags().Changed("interval") {
				interval = cfg.Scheduler.Interval
			}
			if !cmd.Flags().Changed("listen") {
				listen = cfg.Scheduler.Listen
			}

			schedule, err := buildSchedule(interval, cronExpr)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ids, err := a.templateIDs(ctx, args)
			if err != nil {
				return err
			}

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			s := scheduler.New(runner, scheduler.Options{
				Metrics: metrics.New(reg),
				Logger:  logger,
				OnPass: func(summary scheduler.Summary) {
					next := time.Time{}
					if !summary.Cancelled {
						next = schedule.Next(time.Now())
					}
					if err := printReport(reportFile, summary, next); err != nil {
						logger.Error("failed to print run report", "error", err)
					}
				},
			})

			if listen != "" {
				srv, err := metrics.Listen(listen, metrics.NewHandler(reg, func() any { return s.Status() }), logger)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Warn("status server shutdown failed", "error", err)
					}
				}()
			}

			if err := s.Start(ctx, ids, schedule); err != nil {
				return err
			}
			color.Cyan("Auto-run started for %d templates, press Ctrl+C to stop", len(ids))

			s.Wait()
			color.Yellow("Auto-run stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Time between passes (minimum 1s)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Standard 5-field cron expression instead of an interval")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve /metrics and /status on this address")
	cmd.Flags().StringVar(&reportFile, "report", "", "pongo2 template file for pass reports")
	cmd.MarkFlagsMutuallyExclusive("interval", "cron")
	return cmd
}

func buildSchedule(interval time.Duration, cronExpr string) (cron.Schedule, error) {
	if cronExpr != "" {
		schedule, err := cron.ParseStandard(cronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
		return schedule, nil
	}

	if err := validate.ValidateInterval(interval); err != nil {
		return nil, err
	}
	return cron.Every(interval), nil
}

func printReport(reportFile string, summary scheduler.Summary, next time.Time) error {
	r := render.NewRenderer()
	vars := render.ReportContext(summary, next)

	var out string
	var err error
	if reportFile != "" {
		out, err = r.RenderFile(reportFile, vars)
	} else {
		out, err = r.RenderString(render.DefaultReport, vars)
	}
	if err != nil {
		return err
	}

	if len(summary.Failed()) > 0 {
		color.Red("%s", out)
	} else {
		color.Green("%s", out)
	}
	return nil
}
