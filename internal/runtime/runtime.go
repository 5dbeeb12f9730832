// Package runtime assembles one running instance of the system - both
// pools, both autoscalers, the dispatcher, the notification sink, the
// sweeper, and the orchestrator that sits in front of all of them - from a
// single config.Config. It exists so cmd/ subcommands share one
// construction path instead of each hand-wiring the graph.
package runtime

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagan/gridgen/internal/autoscale"
	"github.com/sagan/gridgen/internal/config"
	"github.com/sagan/gridgen/internal/dispatcher"
	"github.com/sagan/gridgen/internal/imageapi"
	"github.com/sagan/gridgen/internal/metrics"
	"github.com/sagan/gridgen/internal/notify"
	"github.com/sagan/gridgen/internal/orchestrator"
	"github.com/sagan/gridgen/internal/pool"
	"github.com/sagan/gridgen/internal/store"
	"github.com/sagan/gridgen/internal/sweep"
)

// Runtime owns every long-lived component of one process.
type Runtime struct {
	Config       *config.Config
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *prometheus.Registry

	defaultPool *pool.Pool
	luminaPool  *pool.Pool
	sweeper     *sweep.Sweeper
}

// New builds a Runtime's dependency graph but does not start any background
// loop; call Start to begin pool autoscaling and the expiry sweep.
func New(cfg *config.Config) (*Runtime, error) {
	st := store.New()

	defaultPool := pool.New("default", cfg.DefaultPool.Min)
	luminaPool := pool.New("lumina", cfg.LuminaPool.Min)

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg, defaultPool, luminaPool); err != nil {
		return nil, err
	}

	sweeper, err := sweep.New(st, time.Duration(cfg.TaskRetentionDays)*24*time.Hour, cfg.SweepCron)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:      cfg,
		Store:       st,
		Registry:    reg,
		defaultPool: defaultPool,
		luminaPool:  luminaPool,
		sweeper:     sweeper,

		// Orchestrator is built in Start, once the dispatcher's background
		// context is available; see Start.
	}, nil
}

// Start spins up both autoscalers, the dispatcher's retry drain loop, and
// the sweep schedule, and builds the Orchestrator bound to ctx's lifetime.
// It returns immediately; everything it starts is stopped by cancelling ctx
// (except the sweeper, stopped explicitly by Stop).
func (r *Runtime) Start(ctx context.Context) {
	cfg := r.Config
	client := imageapi.New(cfg)

	defaultParams := orchestrator.PoolParamsFromConfig(
		cfg.DefaultPool.Min, cfg.DefaultPool.Max, cfg.DefaultPool.Step,
		cfg.DefaultPool.ScaleUpInterval, cfg.DefaultPool.ScaleDownInterval, 0)
	go autoscale.New(r.defaultPool, defaultParams, cfg.AutoscalerTick).Run(ctx)

	luminaParams := orchestrator.PoolParamsFromConfig(
		cfg.LuminaPool.Min, cfg.LuminaPool.Max, cfg.LuminaPool.Step,
		cfg.LuminaPool.ScaleUpInterval, cfg.LuminaPool.ScaleDownInterval, cfg.LuminaEmptyTimeout)
	go autoscale.New(r.luminaPool, luminaParams, cfg.AutoscalerTick).Run(ctx)

	d := dispatcher.New(ctx, client, r.Store, r.defaultPool, r.luminaPool)
	sink := notify.New(cfg.NotificationURL)
	r.Orchestrator = orchestrator.New(ctx, r.Store, d, sink, cfg.MonitorTick)

	r.sweeper.Start()
}

// Stop halts the sweep schedule; pool/autoscaler/dispatcher goroutines are
// stopped by cancelling the ctx passed to Start.
func (r *Runtime) Stop() {
	r.sweeper.Stop()
}
