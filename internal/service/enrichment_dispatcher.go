package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/examcore/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrDispatcherStopped = errors.New("enrichment queue is stopped")
	ErrDispatcherFull    = errors.New("enrichment queue is full")
)

// AttemptScoredEvent is published once a submission has been committed.
type AttemptScoredEvent struct {
	AttemptID   string    `json:"attempt_id"`
	ExamID      string    `json:"exam_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// EnrichmentDispatcher hands a scored attempt to whatever runs the enrichment
// pipeline. Dispatch must not wait for the pipeline itself.
type EnrichmentDispatcher interface {
	Dispatch(ctx context.Context, ev AttemptScoredEvent) error
}

// MemoryDispatcher is an in-process buffered queue drained by a fixed number
// of consumer goroutines.
type MemoryDispatcher struct {
	enrich    EnrichmentService
	jobs      chan AttemptScoredEvent
	consumers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func NewMemoryDispatcher(enrich EnrichmentService, bufferSize, consumers int) *MemoryDispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if consumers <= 0 {
		consumers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryDispatcher{
		enrich:    enrich,
		jobs:      make(chan AttemptScoredEvent, bufferSize),
		consumers: consumers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (d *MemoryDispatcher) Start() {
	log.Info().Int("consumers", d.consumers).Msg("Starting in-memory enrichment queue")
	for i := 0; i < d.consumers; i++ {
		d.wg.Go(d.consume)
	}
}

func (d *MemoryDispatcher) consume() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev := <-d.jobs:
			if err := d.enrich.Process(d.ctx, ev.AttemptID); err != nil {
				log.Error().Err(err).Str("attemptID", ev.AttemptID).Msg("Enrichment job failed")
			}
		}
	}
}

// Stop cancels running jobs and waits for the consumers to return. Events still
// buffered stay PENDING in the database and are picked up on the next start.
func (d *MemoryDispatcher) Stop(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Int("dropped", len(d.jobs)).Msg("In-memory enrichment queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) Dispatch(_ context.Context, ev AttemptScoredEvent) error {
	if d.ctx.Err() != nil {
		return ErrDispatcherStopped
	}
	select {
	case d.jobs <- ev:
		return nil
	default:
		return ErrDispatcherFull
	}
}

// MessagePublisher publishes a raw message body to a broker.
type MessagePublisher interface {
	Publish(ctx context.Context, body []byte) error
}

type brokerDispatcher struct {
	publisher MessagePublisher
}

// NewBrokerDispatcher publishes scored attempts as JSON for an out-of-process consumer.
func NewBrokerDispatcher(publisher MessagePublisher) EnrichmentDispatcher {
	return &brokerDispatcher{publisher: publisher}
}

func (d *brokerDispatcher) Dispatch(ctx context.Context, ev AttemptScoredEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode attempt scored event: %w", err)
	}
	return d.publisher.Publish(ctx, body)
}

// EnrichmentMessageHandler decodes a broker message and runs the pipeline for it.
func EnrichmentMessageHandler(enrich EnrichmentService) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var ev AttemptScoredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode attempt scored event: %w", err)
		}
		if ev.AttemptID == "" {
			return errors.New("attempt scored event without attempt id")
		}
		return enrich.Process(ctx, ev.AttemptID)
	}
}

// RequeuePendingEnrichment re-dispatches attempts that were committed but
// never enriched, e.g. because the process stopped with events still buffered.
// RUNNING attempts whose claim is older than staleBefore are requeued too.
func RequeuePendingEnrichment(ctx context.Context, attemptRepo repository.AttemptRepository, dispatcher EnrichmentDispatcher, staleBefore time.Time, limit int) (int, error) {
	attempts, err := attemptRepo.ListPendingEnrichment(ctx, staleBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending enrichment: %w", err)
	}
	queued := 0
	for _, a := range attempts {
		ev := AttemptScoredEvent{AttemptID: a.ID, ExamID: a.ExamID}
		if a.SubmittedAt != nil {
			ev.SubmittedAt = *a.SubmittedAt
		}
		if err := dispatcher.Dispatch(ctx, ev); err != nil {
			log.Warn().Err(err).Str("attemptID", a.ID).Msg("Failed to requeue pending enrichment")
			continue
		}
		queued++
	}
	return queued, nil
}
