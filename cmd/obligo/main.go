package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/obligo/internal/bootstrap"
	"github.com/smallbiznis/obligo/internal/clock"
	commissionsyncdomain "github.com/smallbiznis/obligo/internal/commissionsync/domain"
	"github.com/smallbiznis/obligo/internal/config"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	reconciledomain "github.com/smallbiznis/obligo/internal/reconcile/domain"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
	"github.com/smallbiznis/obligo/internal/scheduler"
	"github.com/smallbiznis/obligo/internal/seed"
	"github.com/smallbiznis/obligo/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const stopTimeout = 15 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "obligo",
		Short:         "Recurring obligations and commission reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		schedulerCmd(),
		migrateCmd(),
		seedCmd(),
		generateCmd(),
		cancelCmd(),
		processRecurrencesCmd(),
		sweepOrphansCmd(),
		deleteObligationCmd(),
		syncCommissionsCmd(),
		detectCmd(),
		repairCmd(),
	)
	return cmd
}

func serveCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				bootstrap.Infra,
				bootstrap.Services,
				server.Module,
			}
			if withScheduler {
				opts = append(opts, scheduler.Module)
			}
			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the periodic jobs in this process")
	return cmd
}

func schedulerCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !once {
				app := fx.New(
					bootstrap.Infra,
					bootstrap.Services,
					scheduler.Module,
				)
				if err := app.Err(); err != nil {
					return err
				}
				app.Run()
				return nil
			}

			var sched *scheduler.Scheduler
			return withApp(cmd, []fx.Option{
				fx.Provide(scheduler.ProvideConfig, scheduler.New),
				fx.Populate(&sched),
			}, func(ctx context.Context) error {
				return sched.RunOnce(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run every enabled job a single time and exit")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				bootstrap.Infra,
				fx.Decorate(bootstrap.ForceMigrations),
				fx.NopLogger,
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			return stopApp(app)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create a demo client, seller, contract, sale and template",
		RunE: func(cmd *cobra.Command, args []string) error {
			var deps struct {
				fx.In

				DB     *gorm.DB
				Node   *snowflake.Node
				Clock  clock.Clock
				Engine *config.EngineConfigHolder
			}
			return withApp(cmd, []fx.Option{fx.Populate(&deps)}, func(ctx context.Context) error {
				owner := snowflake.ID(deps.Engine.Get().SystemOwnerID)
				demo, err := seed.EnsureDemoData(ctx, deps.DB, deps.Node, owner, deps.Clock.Now())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), demo)
			})
		},
	}
}

type services struct {
	fx.In

	Recurrence recurrencedomain.Service
	Reconcile  reconciledomain.Service
	Sync       commissionsyncdomain.Service
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <contract-id>",
		Short: "Generate future receivables and commissions for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Recurrence.GenerateFutureAccounts(ctx, id)
			})
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <contract-id>",
		Short: "Cancel pending future receivables and payables for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Recurrence.CancelFutureAccounts(ctx, id)
			})
		},
	}
}

func processRecurrencesCmd() *cobra.Command {
	var (
		lookahead   int
		targetMonth string
		templates   bool
	)

	cmd := &cobra.Command{
		Use:   "process-recurrences",
		Short: "Materialize due instances of recurring templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := recurrencedomain.ProcessRequest{Lookahead: lookahead}
			if targetMonth != "" {
				month, err := time.Parse("2006-01", targetMonth)
				if err != nil {
					return fmt.Errorf("invalid --target-month %q: %w", targetMonth, err)
				}
				req.TargetMonth = &month
			}
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				if templates {
					return svc.Recurrence.ProcessGenericRecurringTemplates(ctx)
				}
				return svc.Recurrence.ProcessDueRecurrences(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&lookahead, "lookahead", 0, "Periods to keep ahead of the last instance (0 uses the configured default)")
	cmd.Flags().StringVar(&targetMonth, "target-month", "", "Only generate up to the end of this month (YYYY-MM)")
	cmd.Flags().BoolVar(&templates, "templates", false, "Use the generic template job settings")
	return cmd
}

func sweepOrphansCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete obligations whose origin no longer exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Reconcile.SweepOrphans(ctx, reconciledomain.SweepRequest{DryRun: dryRun})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphans without deleting them")
	return cmd
}

func deleteObligationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-obligation <obligation-id>",
		Short: "Delete an obligation unless a live origin protects it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Reconcile.ValidateAndDelete(ctx, id)
			})
		},
	}
}

func syncCommissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-commissions",
		Short: "Create commissions missing for closed sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Sync.SyncMissingCommissions(ctx)
			})
		},
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "List sale, receivable and commission inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Reconcile.DetectInconsistencies(ctx)
			})
		},
	}
}

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Repair detected inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc services) (any, error) {
				return svc.Reconcile.RepairInconsistencies(ctx)
			})
		},
	}
}

func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc services) (any, error)) error {
	var svc services
	return withApp(cmd, []fx.Option{fx.Populate(&svc)}, func(ctx context.Context) error {
		out, err := fn(ctx, svc)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

// withApp starts Infra and Services, runs fn as the system actor and stops the app.
func withApp(cmd *cobra.Command, extra []fx.Option, fn func(ctx context.Context) error) error {
	opts := append([]fx.Option{
		bootstrap.Infra,
		bootstrap.Services,
		fx.NopLogger,
	}, extra...)
	app := fx.New(opts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	ctx = obscontext.WithActor(ctx, "system", "cli")
	ctx = obscontext.WithRunID(ctx, ulid.Make().String())
	runErr := fn(ctx)
	if err := stopApp(app); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func stopApp(app *fx.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return app.Stop(ctx)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
