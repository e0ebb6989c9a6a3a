package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/app"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/pool"
	"github.com/radieske/sports-bet-ledger/internal/scheduler"
	"github.com/radieske/sports-bet-ledger/internal/shared/config"
)

// env é o que os comandos precisam; open conecta sob demanda para que
// --help funcione sem banco.
type env struct {
	cfg     config.Config
	log     *zap.Logger
	open    func(ctx context.Context) (*app.Engines, func(), error)
	migrate func(ctx context.Context) error
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operações administrativas do ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		migrateCmd(e),
		sweepCmd(e),
		poolCmd(e),
		wagerCmd(e),
		eventCmd(e),
		accountCmd(e),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withEngines abre a conexão, roda fn e fecha.
func (e *env) withEngines(cmd *cobra.Command, fn func(ctx context.Context, en *app.Engines) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	en, closeFn, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	out, err := fn(ctx, en)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica o schema no Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func sweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [job|all]",
		Short: "Executa uma varredura uma única vez",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
				jobs, err := en.Jobs(e.cfg)
				if err != nil {
					return nil, err
				}
				s := scheduler.New(e.log.Named("scheduler"), jobs...)
				if args[0] == "all" {
					return s.RunAll(ctx), nil
				}
				res, err := s.RunOnce(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]model.SweepResult{args[0]: res}, nil
			})
		},
	}
}

func poolCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "pool", Short: "Operações de bolão"}

	var reason string
	cancel := &cobra.Command{
		Use:  "cancel <poolId>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
				return refundSummary(en.Pools.CancelPool(ctx, args[0], reason))
			})
		},
	}
	cancel.Flags().StringVar(&reason, "reason", "cancelled by operator", "motivo do cancelamento")

	cmd.AddCommand(
		&cobra.Command{
			Use:  "close <poolId>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
					return en.Pools.ClosePool(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:  "finalize <poolId>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
					return en.Pools.Finalize(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:  "retry-refunds <poolId>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
					return refundSummary(en.Pools.RetryRefunds(ctx, args[0]))
				})
			},
		},
		cancel,
	)
	return cmd
}

func refundSummary(outcomes []model.RefundOutcome, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"outcomes": outcomes, "failed": pool.FailedRefunds(outcomes)}, nil
}

func wagerCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "wager", Short: "Liquidação manual de apostas"}

	var reason string
	settle := func(use string, fn func(ctx context.Context, en *app.Engines, id string) (*model.Wager, error)) *cobra.Command {
		return &cobra.Command{
			Use:  use + " <wagerId>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
					return fn(ctx, en, args[0])
				})
			},
		}
	}
	won := settle("won", func(ctx context.Context, en *app.Engines, id string) (*model.Wager, error) {
		return en.Wagers.ResolveWon(ctx, id)
	})
	lost := settle("lost", func(ctx context.Context, en *app.Engines, id string) (*model.Wager, error) {
		return en.Wagers.ResolveLost(ctx, id)
	})
	refund := settle("refund", func(ctx context.Context, en *app.Engines, id string) (*model.Wager, error) {
		return en.Wagers.Refund(ctx, id, reason)
	})
	cancel := settle("cancel", func(ctx context.Context, en *app.Engines, id string) (*model.Wager, error) {
		return en.Wagers.Cancel(ctx, id, reason)
	})
	refund.Flags().StringVar(&reason, "reason", "refunded by operator", "motivo")
	cancel.Flags().StringVar(&reason, "reason", "cancelled by operator", "motivo")

	cmd.AddCommand(won, lost, refund, cancel)
	return cmd
}

func eventCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Operações de evento"}
	cmd.AddCommand(&cobra.Command{
		Use:  "finish <eventId> <homeScore> <awayScore>",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("homeScore: %w", err)
			}
			away, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("awayScore: %w", err)
			}
			return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
				return en.Events.FinishEvent(ctx, args[0], home, away)
			})
		},
	})
	return cmd
}

func accountCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Consultas de conta"}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <accountId>",
		Short: "Confere saldo materializado contra a soma dos lançamentos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEngines(cmd, func(ctx context.Context, en *app.Engines) (any, error) {
				if err := en.Ledger.Verify(ctx, args[0]); err != nil {
					return nil, err
				}
				bal, err := en.Ledger.GetBalance(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]any{"accountId": args[0], "balance": bal, "consistent": true}, nil
			})
		},
	})
	return cmd
}
