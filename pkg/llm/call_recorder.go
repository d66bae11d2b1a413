package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
)

// CallStore persists recorded calls. repositories.LLMCallRepository satisfies it.
type CallStore interface {
	Save(ctx context.Context, call *models.LLMCall) error
	Update(ctx context.Context, call *models.LLMCall) error
}

// CallRecorder records completion calls.
type CallRecorder interface {
	// SavePending synchronously inserts a pending record before the call starts,
	// so in-flight requests can be found by status.
	SavePending(ctx context.Context, call *models.LLMCall) error

	// RecordCompletion queues the final state of a call. When the pending
	// insert failed the call is inserted instead of updated.
	RecordCompletion(call *models.LLMCall, pendingSaved bool)
}

// recordOp represents a database operation for call recording.
type recordOp struct {
	call     *models.LLMCall
	isUpdate bool
}

// storeTimeout bounds each background write.
const storeTimeout = 5 * time.Second

// AsyncCallRecorder writes completions from a background goroutine so that
// recording never delays a generation.
type AsyncCallRecorder struct {
	store     CallStore
	logger    *zap.Logger
	queue     chan recordOp
	done      chan struct{}
	closeOnce sync.Once
}

// NewAsyncCallRecorder creates a recorder and starts its writer.
// queueSize controls the buffer size - if full, records are dropped with a warning.
func NewAsyncCallRecorder(store CallStore, logger *zap.Logger, queueSize int) *AsyncCallRecorder {
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &AsyncCallRecorder{
		store:  store,
		logger: logger.Named("call-recorder"),
		queue:  make(chan recordOp, queueSize),
		done:   make(chan struct{}),
	}

	go r.processQueue()

	return r
}

var _ CallRecorder = (*AsyncCallRecorder)(nil)

func (r *AsyncCallRecorder) SavePending(ctx context.Context, call *models.LLMCall) error {
	call.Status = models.LLMCallStatusPending

	if err := r.store.Save(ctx, call); err != nil {
		r.logger.Error("Failed to save pending LLM call",
			zap.String("model", call.Model),
			zap.Error(err))
		return err
	}
	return nil
}

// RecordCompletion is non-blocking. Must not be called after Close.
func (r *AsyncCallRecorder) RecordCompletion(call *models.LLMCall, pendingSaved bool) {
	select {
	case r.queue <- recordOp{call: call, isUpdate: pendingSaved}:
	default:
		r.logger.Warn("LLM call queue full, dropping record",
			zap.String("id", call.ID.String()),
			zap.String("model", call.Model))
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (r *AsyncCallRecorder) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
	<-r.done
}

func (r *AsyncCallRecorder) processQueue() {
	defer close(r.done)

	for op := range r.queue {
		r.write(op)
	}
}

func (r *AsyncCallRecorder) write(op recordOp) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	if op.isUpdate {
		err = r.store.Update(ctx, op.call)
	} else {
		err = r.store.Save(ctx, op.call)
	}
	if err != nil {
		r.logger.Error("Failed to record LLM call",
			zap.String("id", op.call.ID.String()),
			zap.String("status", op.call.Status),
			zap.Bool("update", op.isUpdate),
			zap.Error(err))
		return
	}

	r.logger.Debug("Recorded LLM call",
		zap.String("id", op.call.ID.String()),
		zap.String("status", op.call.Status),
		zap.Int("duration_ms", op.call.DurationMs))
}
