package autoscale

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/pool"
)

func runningUnits(p *pool.Pool, n int) (release func()) {
	ctx := context.Background()
	release1 := make(chan struct{})
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		p.Submit(ctx, id, func(ctx context.Context) (any, error) {
			<-release1
			return nil, nil
		})
	}
	for p.Stats().Running < n {
		time.Sleep(time.Millisecond)
	}
	return func() { close(release1) }
}

func TestAutoscaler_S6_ScaleUp(t *testing.T) {
	p := pool.New("default", 10)
	a := New(p, Params{Min: 10, Max: 50, Step: 5, ScaleUpInterval: 0, ScaleDownInterval: time.Hour}, time.Second)

	release := runningUnits(p, 20)
	defer release()

	a.step(time.Now())
	require.Equal(t, 15, p.Stats().Limit)
}

func TestAutoscaler_RespectsMax(t *testing.T) {
	p := pool.New("default", 48)
	a := New(p, Params{Min: 10, Max: 50, Step: 5, ScaleUpInterval: 0, ScaleDownInterval: time.Hour}, time.Second)

	release := runningUnits(p, 96)
	defer release()

	a.step(time.Now())
	require.Equal(t, 50, p.Stats().Limit)
}

func TestAutoscaler_DefaultPool_ScalesDownOnLowUtilization(t *testing.T) {
	p := pool.New("default", 20)
	a := New(p, Params{Min: 10, Max: 50, Step: 5, ScaleUpInterval: time.Hour, ScaleDownInterval: 0}, time.Second)

	release := runningUnits(p, 2) // running(2) < limit/2(10)
	defer release()

	a.step(time.Now())
	require.Equal(t, 15, p.Stats().Limit)
}

func TestAutoscaler_LuminaPool_RequiresSustainedIdle(t *testing.T) {
	p := pool.New("lumina", 20)
	a := New(p, Params{
		Min: 10, Max: 20, Step: 2, ScaleUpInterval: time.Hour, ScaleDownInterval: 0,
		LuminaEmptyTimeout: 180 * time.Second,
	}, time.Second)

	base := time.Now()
	a.step(base) // running==0, but emptySince just set now; not enough elapsed
	require.Equal(t, 20, p.Stats().Limit)

	a.step(base.Add(200 * time.Second))
	require.Equal(t, 18, p.Stats().Limit, "sustained idle past 180s should scale down")
}

func TestAutoscaler_LuminaPool_ResetsEmptyTimerWhenBusy(t *testing.T) {
	p := pool.New("lumina", 10)
	a := New(p, Params{
		Min: 4, Max: 20, Step: 2, ScaleUpInterval: time.Hour, ScaleDownInterval: 0,
		LuminaEmptyTimeout: 180 * time.Second,
	}, time.Second)

	base := time.Now()
	a.step(base) // empty, timer starts

	release := runningUnits(p, 1)
	a.step(base.Add(190 * time.Second)) // busy now, timer should have reset
	require.Equal(t, 10, p.Stats().Limit, "must not scale down while running>0")
	release()

	a.step(base.Add(191 * time.Second)) // empty again, but only just reset
	require.Equal(t, 10, p.Stats().Limit)

	a.step(base.Add(400 * time.Second)) // 180s past the reset point
	require.Equal(t, 8, p.Stats().Limit)
}
