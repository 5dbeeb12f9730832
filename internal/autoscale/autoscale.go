// Package autoscale implements the autoscaler (C6): one background loop per
// pool, waking every tick to grow or shrink that pool's limit based on
// backlog and idle time. The default and Lumina pools share this same
// autoscaler type but never share state - two independent instances with
// independently configured parameters, per §9.
package autoscale

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/metrics"
	"github.com/sagan/gridgen/internal/pool"
)

// Params is one pool's autoscaler configuration.
type Params struct {
	Min               int
	Max               int
	Step              int
	ScaleUpInterval   time.Duration
	ScaleDownInterval time.Duration
	// LuminaEmptyTimeout, when non-zero, requires Running == 0 continuously
	// for this long before scale-down is considered at all - the Lumina
	// pool's extra caution against thrashing a capacity-fragile backend.
	LuminaEmptyTimeout time.Duration
}

// Autoscaler drives one pool's limit over time.
type Autoscaler struct {
	pool   *pool.Pool
	params Params
	tick   time.Duration
	log    *log.Entry

	lastScaleUp   time.Time
	lastScaleDown time.Time
	emptySince    time.Time
}

func New(p *pool.Pool, params Params, tick time.Duration) *Autoscaler {
	return &Autoscaler{
		pool:   p,
		params: params,
		tick:   tick,
		log:    log.WithField("pool", p.Name()),
	}
}

// Run blocks, ticking until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.step(now)
		}
	}
}

// step applies one evaluation of the scale-up/scale-down rules; it is
// unexported but called directly by this package's tests, which want
// deterministic timing instead of a real ticker.
func (a *Autoscaler) step(now time.Time) {
	stats := a.pool.Stats()

	if stats.Running > 0 {
		a.emptySince = time.Time{}
	} else if a.emptySince.IsZero() {
		a.emptySince = now
	}

	if a.tryScaleUp(now, stats) {
		return
	}
	a.tryScaleDown(now, stats)
}

func (a *Autoscaler) tryScaleUp(now time.Time, stats pool.Stats) bool {
	if stats.Running < 2*stats.Limit {
		return false
	}
	if stats.Limit >= a.params.Max {
		return false
	}
	if !a.lastScaleUp.IsZero() && now.Sub(a.lastScaleUp) < a.params.ScaleUpInterval {
		return false
	}
	newLimit := stats.Limit + a.params.Step
	if newLimit > a.params.Max {
		newLimit = a.params.Max
	}
	a.pool.SetLimit(newLimit)
	a.lastScaleUp = now
	metrics.AutoscaleEvents.WithLabelValues(a.pool.Name(), "up").Inc()
	a.log.WithFields(log.Fields{"from": stats.Limit, "to": newLimit}).Info("autoscale up")
	return true
}

func (a *Autoscaler) tryScaleDown(now time.Time, stats pool.Stats) bool {
	if stats.Limit <= a.params.Min {
		return false
	}
	if !a.lastScaleDown.IsZero() && now.Sub(a.lastScaleDown) < a.params.ScaleDownInterval {
		return false
	}

	if a.params.LuminaEmptyTimeout > 0 {
		if stats.Running != 0 {
			return false
		}
		if a.emptySince.IsZero() || now.Sub(a.emptySince) < a.params.LuminaEmptyTimeout {
			return false
		}
	} else if stats.Running >= stats.Limit/2 {
		return false
	}

	newLimit := stats.Limit - a.params.Step
	if newLimit < a.params.Min {
		newLimit = a.params.Min
	}
	a.pool.SetLimit(newLimit)
	a.lastScaleDown = now
	metrics.AutoscaleEvents.WithLabelValues(a.pool.Name(), "down").Inc()
	a.log.WithFields(log.Fields{"from": stats.Limit, "to": newLimit}).Info("autoscale down")
	return true
}
