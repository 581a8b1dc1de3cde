package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/volteq/flexplan/config"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/publish"
	"github.com/volteq/flexplan/core/replan"
	"github.com/volteq/flexplan/core/solver"
	"github.com/volteq/flexplan/feed"
	"github.com/volteq/flexplan/infra/logger"
	"github.com/volteq/flexplan/pkg/export"
	"github.com/volteq/flexplan/registry"
)

var (
	planPortfolio string
	planFormat    string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning cycle and print the schedule",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planPortfolio, "portfolio", "", "portfolio to plan (defaults to the only configured one)")
	planCmd.Flags().StringVar(&planFormat, "format", "summary", "output format: summary, json or csv")
	rootCmd.AddCommand(planCmd)
}

// capturePublisher hands the first publication to the waiting command.
type capturePublisher struct {
	done chan publish.Publication
}

func (p capturePublisher) PublishSchedule(_ context.Context, pub publish.Publication) error {
	select {
	case p.done <- pub:
	default:
	}
	return nil
}

type planOut struct {
	ScheduleID   string               `json:"schedule_id"`
	Portfolio    string               `json:"portfolio"`
	Status       string               `json:"status"`
	Objective    float64              `json:"objective"`
	Solver       string               `json:"solver"`
	PeriodStarts []time.Time          `json:"period_starts"`
	AggregateKW  []float64            `json:"aggregate_kw"`
	SetpointsKW  map[string][]float64 `json:"setpoints_kw"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	portfolios, err := config.BuildPortfolios(cfg.Portfolios)
	if err != nil {
		return fmt.Errorf("portfolios: %w", err)
	}
	name := planPortfolio
	if name == "" {
		if len(portfolios) != 1 {
			return fmt.Errorf("--portfolio required when %d portfolios are configured", len(portfolios))
		}
		for n := range portfolios {
			name = n
		}
	}
	if _, ok := portfolios[name]; !ok {
		return fmt.Errorf("unknown portfolio %s", name)
	}

	reg, err := registry.NewStatic(portfolios)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	cache := feed.NewCache()
	noNotify := func(model.Trigger) {}
	switch cfg.Feed.Mode {
	case "http":
		cli := feed.NewClient(cfg.Feed.Client, cache, reg, noNotify)
		if err := cli.Poll(ctx); err != nil {
			return fmt.Errorf("feed poll: %w", err)
		}
	default:
		feed.NewMock(cfg.Feed.Mock, cfg.Planner, cache, reg, noNotify).Emit(time.Now())
	}

	solv, err := solver.Builtin().Create(cfg.Solver)
	if err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	capture := capturePublisher{done: make(chan publish.Publication, 1)}
	ctrl, err := replan.NewController(name, cfg.Planner, reg, cache, solv, capture, coremetrics.NopSink{}, nil, logger.New("plan-command"))
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	go ctrl.Run(ctx)
	ctrl.Submit(model.Trigger{Kind: model.TriggerManual, Portfolio: name, At: time.Now(), Reason: "plan command"})

	select {
	case pub := <-capture.done:
		return writePlan(cmd, pub.Schedule)
	case <-time.After(30 * time.Second):
		return fmt.Errorf("no schedule produced within 30s")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writePlan(cmd *cobra.Command, s model.Schedule) error {
	w := cmd.OutOrStdout()
	switch planFormat {
	case "csv":
		return export.WriteCSV(w, s)
	case "json":
		return export.WriteJSON(w, s)
	case "summary":
		out := planOut{
			ScheduleID:  s.ID,
			Portfolio:   s.Portfolio,
			Status:      s.Status.String(),
			Objective:   s.Objective,
			Solver:      s.Solver,
			AggregateKW: s.AggregateKW,
			SetpointsKW: s.SetpointsKW,
		}
		for i := 0; i < s.Horizon.Len(); i++ {
			out.PeriodStarts = append(out.PeriodStarts, s.Horizon.Period(i).Start)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("unknown format %q", planFormat)
	}
}
