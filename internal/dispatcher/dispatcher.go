// Package dispatcher implements the two-pool router (C7): it decides
// default vs. Lumina pool per subtask, builds the unit that calls C1,
// classifies the outcome via C4, and writes results back through C3.
//
// Retries are resubmitted through a small bounded queue rather than
// straight back into the pool the initial submission used: per §9's
// flagged open question, submitting retries through the same unbounded
// path as new work risks runaway growth of in-flight retries under load.
// A bounded queue caps that growth; when full, a retry is logged and
// dropped rather than blocking the producer.
package dispatcher

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sagan/gridgen/internal/classifier"
	"github.com/sagan/gridgen/internal/imageapi"
	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/pool"
	"github.com/sagan/gridgen/internal/store"
)

var logger = log.WithField("component", "dispatcher")

const retryQueueCapacity = 4096

type retryJob struct {
	subtaskID string
	delay     time.Duration
}

// Dispatcher owns the two pools and routes subtasks between them.
type Dispatcher struct {
	client      *imageapi.Client
	store       *store.Store
	defaultPool *pool.Pool
	luminaPool  *pool.Pool
	retryQueue  chan retryJob
	bgCtx       context.Context
}

func New(ctx context.Context, client *imageapi.Client, st *store.Store, defaultPool, luminaPool *pool.Pool) *Dispatcher {
	d := &Dispatcher{
		client:      client,
		store:       st,
		defaultPool: defaultPool,
		luminaPool:  luminaPool,
		retryQueue:  make(chan retryJob, retryQueueCapacity),
		bgCtx:       ctx,
	}
	go d.drainRetryQueue()
	return d
}

// Dispatch fans out submission of a task's newly created subtasks,
// logging progress every 10 units, per §4.7 point 3. It returns once every
// subtask has been handed to its pool (not once admitted or completed); the
// units then wait for a slot and run under ctx, which outlives this call.
func (d *Dispatcher) Dispatch(ctx context.Context, subtasks []*model.Subtask) error {
	g, _ := errgroup.WithContext(ctx)
	submitted := 0
	for _, st := range subtasks {
		st := st
		g.Go(func() error {
			d.submit(ctx, st)
			return nil
		})
		submitted++
		if submitted%10 == 0 {
			logger.WithField("submitted", submitted).Info("dispatch progress")
		}
	}
	return g.Wait()
}

func (d *Dispatcher) poolFor(st *model.Subtask) *pool.Pool {
	if st.IsLumina() {
		return d.luminaPool
	}
	return d.defaultPool
}

func (d *Dispatcher) submit(ctx context.Context, st *model.Subtask) {
	p := d.poolFor(st)
	p.Submit(ctx, st.ID, d.makeUnit(st.ID))
}

// makeUnit builds the pool.Unit for subtask id: read its current state,
// call C1, classify, and write the outcome back through C3.
func (d *Dispatcher) makeUnit(subtaskID string) pool.Unit {
	return func(ctx context.Context) (any, error) {
		st, err := d.store.GetSubtask(subtaskID)
		if err != nil {
			return nil, err
		}
		if st.Status.Terminal() {
			return nil, nil
		}

		_ = d.store.UpdateStatus(subtaskID, model.SubtaskProcessing, store.StatusUpdate{})

		req := imageapi.Request{
			Queue:   st.MakeAPIQueue,
			Prompts: toPromptPayloads(st.Prompts),
			Ratio:   st.Ratio,
			Seed:    st.Seed,
			Polish:  st.UsePolish,
			ClientArgs: map[string]any{
				"ckpt_name": st.ClientArgs.CkptName,
				"steps":     st.ClientArgs.Steps,
				"cfg":       st.ClientArgs.Cfg,
			},
		}
		resp, outcome := d.client.Generate(ctx, req)
		d.handleOutcome(subtaskID, st.RetryCount, resp, outcome)
		return nil, nil
	}
}

func (d *Dispatcher) handleOutcome(subtaskID string, retryCount int, resp imageapi.Response, outcome classifier.Outcome) {
	action := classifier.Classify(outcome, retryCount)
	entry := logger.WithFields(log.Fields{"subtask": subtaskID, "outcome": outcome.Kind.String(), "action": action})

	switch action {
	case classifier.ActionComplete:
		if err := d.store.SetResult(subtaskID, model.Result{
			URL: resp.URL, Width: resp.Width, Height: resp.Height, Seed: resp.Seed, CreatedAt: time.Now(),
		}); err != nil {
			entry.WithError(err).Warn("set result failed")
		}
	case classifier.ActionFail:
		if err := d.store.UpdateStatus(subtaskID, model.SubtaskFailed, store.StatusUpdate{
			Error: outcome.Error(), IncrementRetry: true,
		}); err != nil {
			entry.WithError(err).Warn("terminal fail update failed")
		}
	case classifier.ActionRetryImmediate:
		if err := d.store.UpdateStatus(subtaskID, model.SubtaskProcessing, store.StatusUpdate{
			Error: outcome.Error(), IncrementRetry: true,
		}); err != nil {
			entry.WithError(err).Warn("retry status update failed")
		}
		d.enqueueRetry(subtaskID, 0)
	case classifier.ActionRetryBackoff:
		if err := d.store.UpdateStatus(subtaskID, model.SubtaskProcessing, store.StatusUpdate{
			Error: outcome.Error(), IncrementRetry: true,
		}); err != nil {
			entry.WithError(err).Warn("retry status update failed")
		}
		d.enqueueRetry(subtaskID, classifier.GenericBackoffSeconds*time.Second)
	}
}

func (d *Dispatcher) enqueueRetry(subtaskID string, delay time.Duration) {
	select {
	case d.retryQueue <- retryJob{subtaskID: subtaskID, delay: delay}:
	default:
		logger.WithField("subtask", subtaskID).Error("retry queue full, dropping retry")
	}
}

func (d *Dispatcher) drainRetryQueue() {
	for {
		select {
		case <-d.bgCtx.Done():
			return
		case job := <-d.retryQueue:
			job := job
			go func() {
				if job.delay > 0 {
					select {
					case <-time.After(job.delay):
					case <-d.bgCtx.Done():
						return
					}
				}
				st, err := d.store.GetSubtask(job.subtaskID)
				if err != nil || st.Status.Terminal() {
					return
				}
				d.submit(d.bgCtx, st)
			}()
		}
	}
}

func toPromptPayloads(items []model.PromptItem) []imageapi.PromptPayload {
	out := make([]imageapi.PromptPayload, len(items))
	for i, it := range items {
		out[i] = imageapi.PromptPayload{
			Type: string(it.Type), Value: it.Value, Name: it.Name, Weight: it.Weight, ImgURL: it.ImgURL,
		}
	}
	return out
}
