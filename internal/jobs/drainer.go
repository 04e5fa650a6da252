package jobs

import (
	"context"
	"strconv"
	"time"

	"github.com/tablestack/tablestack-backend/pkg/logger"
)

const incidentSource = "sync-queue"

// DrainerConfig bounds a drain pass.
type DrainerConfig struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	// MaxAttempts is the number of dispatches a job gets before it is
	// dead-lettered.
	MaxAttempts int
}

// DrainResult counts what one drain pass did.
type DrainResult struct {
	Read         int `json:"read"`
	Dispatched   int `json:"dispatched"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
}

// Drainer moves jobs from the queue to the dispatcher.
type Drainer struct {
	queue      Queue
	dispatcher Dispatcher
	incidents  IncidentSink
	cfg        DrainerConfig
	logger     *logger.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewDrainer creates a drainer. Zero config values take defaults of 10 jobs,
// a two minute visibility timeout and 3 attempts.
func NewDrainer(queue Queue, dispatcher Dispatcher, incidents IncidentSink, cfg DrainerConfig, log *logger.Logger) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Drainer{
		queue:      queue,
		dispatcher: dispatcher,
		incidents:  incidents,
		cfg:        cfg,
		logger:     log.WithComponent("drainer"),
	}
}

// Drain claims one batch and handles every job in it. The returned error is
// set only when the batch could not be read; per-job failures are counted.
func (d *Drainer) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	jobs, err := d.queue.Read(ctx, d.cfg.BatchSize, d.cfg.VisibilityTimeout)
	if err != nil {
		return result, err
	}
	result.Read = len(jobs)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		d.handle(ctx, job, &result)
	}

	if result.Read > 0 {
		d.logger.Info().
			Int("read", result.Read).
			Int("dispatched", result.Dispatched).
			Int("retried", result.Retried).
			Int("dead_lettered", result.DeadLettered).
			Msg("queue drained")
	}
	return result, nil
}

func (d *Drainer) handle(ctx context.Context, job Job, result *DrainResult) {
	log := d.logger.With().Int64("job_id", job.ID).Int("read_ct", job.ReadCt).Logger()

	// A job claimed past its budget was abandoned mid-dispatch earlier.
	if job.ReadCt > d.cfg.MaxAttempts {
		lastError := "attempts exhausted"
		if job.LastError != nil {
			lastError = *job.LastError
		}
		d.deadLetter(ctx, job, lastError, result)
		return
	}

	err := d.dispatcher.Dispatch(ctx, job)
	if err == nil {
		result.Dispatched++
		if err := d.queue.Delete(ctx, job.ID); err != nil {
			log.Error().Err(err).Msg("failed to delete dispatched job")
		}
		return
	}

	if IsRetryable(err) && job.ReadCt < d.cfg.MaxAttempts {
		result.Retried++
		log.Warn().Err(err).Msg("dispatch failed, job will be retried")
		if err := d.queue.Fail(ctx, job.ID, err.Error()); err != nil {
			log.Error().Err(err).Msg("failed to record job error")
		}
		return
	}

	d.deadLetter(ctx, job, err.Error(), result)
}

func (d *Drainer) deadLetter(ctx context.Context, job Job, lastError string, result *DrainResult) {
	log := d.logger.With().Int64("job_id", job.ID).Int("read_ct", job.ReadCt).Logger()

	if err := d.queue.DeadLetter(ctx, job, lastError); err != nil {
		log.Error().Err(err).Msg("failed to dead-letter job")
		return
	}
	result.DeadLettered++
	log.Error().Str("last_error", lastError).Msg("job moved to dead letter")

	_, err := d.incidents.Raise(ctx, Incident{
		Source:   incidentSource,
		Severity: SeverityCritical,
		Message:  "sync job exhausted its attempts",
		Details: map[string]string{
			"job_id":     strconv.FormatInt(job.ID, 10),
			"read_ct":    strconv.Itoa(job.ReadCt),
			"last_error": lastError,
			"payload":    string(job.Payload),
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to raise dead letter incident")
	}
}

// Start drains on every tick until ctx is cancelled or Stop is called.
func (d *Drainer) Start(ctx context.Context, interval time.Duration) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		d.logger.Info().Dur("interval", interval).Msg("queue drainer started")
		for {
			select {
			case <-ctx.Done():
				d.logger.Info().Msg("queue drainer stopped")
				return
			case <-ticker.C:
				if _, err := d.Drain(ctx); err != nil {
					d.logger.Error().Err(err).Msg("drain pass failed")
				}
			}
		}
	}()
}

// Stop ends the loop and waits for the current pass.
func (d *Drainer) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}
