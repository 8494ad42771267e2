// Package worker hosts the background loops: the write-behind persist
// worker and the no-show sweeper.
package worker

import (
	"context"
	"errors"
	"time"

	"labovik/internal/domain"
	"labovik/internal/models"

	"github.com/rs/zerolog"
)

const (
	taskBooking     = "booking"
	taskAccount     = "account"
	taskTransaction = "transaction"
)

type persistTask struct {
	kind        string
	booking     *models.Booking
	account     models.BudgetAccount
	transaction models.LedgerTransaction
}

// PersistWorker drains an in-memory queue into the durable store and
// the snapshot repository. The engine enqueues after its critical
// section commits; a full queue is reported, never blocked on.
type PersistWorker struct {
	store     domain.Store
	snapshots domain.SnapshotRepository
	retry     RetryPolicy
	queue     chan persistTask
	logger    *zerolog.Logger
	done      chan struct{}
}

var ErrQueueFull = errors.New("persist queue is full")

func NewPersistWorker(store domain.Store, snapshots domain.SnapshotRepository, retry RetryPolicy, logger *zerolog.Logger) *PersistWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 5 * time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &PersistWorker{
		store:     store,
		snapshots: snapshots,
		retry:     retry,
		queue:     make(chan persistTask, models.WorkerQueueSize),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (w *PersistWorker) EnqueueBooking(_ context.Context, booking *models.Booking) error {
	return w.enqueue(persistTask{kind: taskBooking, booking: booking})
}

func (w *PersistWorker) EnqueueAccount(_ context.Context, account models.BudgetAccount) error {
	return w.enqueue(persistTask{kind: taskAccount, account: account})
}

func (w *PersistWorker) EnqueueTransaction(_ context.Context, tx models.LedgerTransaction) error {
	return w.enqueue(persistTask{kind: taskTransaction, transaction: tx})
}

func (w *PersistWorker) enqueue(task persistTask) error {
	select {
	case w.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is cancelled, then drains what is
// already buffered so a clean shutdown loses nothing.
func (w *PersistWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case task := <-w.queue:
			w.process(task)
		case <-ctx.Done():
			for {
				select {
				case task := <-w.queue:
					w.process(task)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *PersistWorker) Wait() {
	<-w.done
}

func (w *PersistWorker) process(task persistTask) {
	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxRetries; attempt++ {
		lastErr = w.apply(task)
		if lastErr == nil {
			return
		}
		time.Sleep(w.retry.NextDelay(attempt))
	}
	if w.logger != nil {
		w.logger.Error().Err(lastErr).Str("task", task.kind).Msg("persist task dropped after retries")
	}
}

func (w *PersistWorker) apply(task persistTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch task.kind {
	case taskBooking:
		if err := w.store.UpsertBooking(ctx, task.booking); err != nil {
			return err
		}
		if w.snapshots != nil {
			if task.booking.IsTerminal() {
				return w.snapshots.DeleteBooking(ctx, task.booking.ID)
			}
			return w.snapshots.SaveBooking(ctx, task.booking)
		}
		return nil
	case taskAccount:
		return w.store.UpsertAccount(ctx, task.account)
	case taskTransaction:
		return w.store.AppendTransaction(ctx, task.transaction)
	}
	return nil
}
