// Package worker executes queued unit-of-work tasks.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jfaulkner/crm-bridge/internal/crm"
	"github.com/jfaulkner/crm-bridge/internal/metrics"
	"github.com/jfaulkner/crm-bridge/internal/uow"
)

// Config controls Worker behavior.
type Config struct {
	CommitTimeout time.Duration
}

// Worker consumes tasks and runs the commit pipeline: build the record
// graph, commit it, write the audit row, deliver the callback. The caller's
// 201 acknowledgement has already been sent by the time a task reaches a
// worker, so every failure here is logged and audited rather than returned.
type Worker struct {
	queue    uow.Queue
	store    crm.Store
	notifier uow.Notifier
	audit    uow.AuditStore
	clock    uow.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. The audit store may be nil.
func New(
	queue uow.Queue,
	store crm.Store,
	notifier uow.Notifier,
	audit uow.AuditStore,
	clock uow.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 30 * time.Second
	}
	return &Worker{
		queue:    queue,
		store:    store,
		notifier: notifier,
		audit:    audit,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		w.Process(ctx, task)
	}
}

// Process runs the full pipeline for one task.
func (w *Worker) Process(ctx context.Context, task uow.Task) {
	graph, refs, err := uow.BuildCaseGraph(task)
	if err != nil {
		// The graph is statically constructed; reaching this is a defect.
		w.logger.Error("graph build failed",
			zap.String("request_id", task.RequestID),
			zap.Error(err),
		)
		w.recordAudit(ctx, task, uow.CaseGraphRefs{}, nil, err)
		metrics.ObserveCommit("failed")
		return
	}

	commitCtx, cancel := context.WithTimeout(ctx, w.cfg.CommitTimeout)
	defer cancel()

	result, err := w.store.Commit(commitCtx, graph)
	if err != nil {
		if !isCommitError(err) {
			err = &uow.CommitError{Err: err}
		}
		w.logger.Error("commit failed",
			zap.String("request_id", task.RequestID),
			zap.Error(err),
		)
		w.recordAudit(ctx, task, refs, nil, err)
		metrics.ObserveCommit("failed")
		return
	}

	w.logger.Info("unit of work committed",
		zap.String("request_id", task.RequestID),
		zap.Int("records", len(result)),
	)
	w.recordAudit(ctx, task, refs, result, nil)
	metrics.ObserveCommit("succeeded")

	envelope := uow.CallbackEnvelope{
		AccountID: result[refs.Account].ID,
		ContactID: result[refs.Contact].ID,
		Cases: uow.CaseIDs{
			ServiceCaseID:  result[refs.ServiceCase].ID,
			FollowupCaseID: result[refs.FollowupCase].ID,
		},
	}
	if err := w.notifier.Notify(ctx, task.CallbackURL, envelope); err != nil {
		// Best effort: the acknowledgement is long gone, so a failed
		// delivery is terminal-but-logged.
		w.logger.Warn("callback delivery failed",
			zap.String("request_id", task.RequestID),
			zap.String("callback_url", task.CallbackURL),
			zap.Error(err),
		)
		metrics.ObserveDelivery("failed")
		return
	}
	metrics.ObserveDelivery("succeeded")
}

func (w *Worker) recordAudit(
	ctx context.Context,
	task uow.Task,
	refs uow.CaseGraphRefs,
	result uow.CommitResult,
	commitErr error,
) {
	if w.audit == nil {
		return
	}
	record := uow.CommitRecord{
		RequestID:   task.RequestID,
		Status:      uow.CommitStatusSucceeded,
		CommittedAt: w.clock.Now(),
	}
	if commitErr != nil {
		record.Status = uow.CommitStatusFailed
		record.ErrorText = commitErr.Error()
	} else {
		record.AccountID = result[refs.Account].ID
		record.ContactID = result[refs.Contact].ID
		record.ServiceCaseID = result[refs.ServiceCase].ID
		record.FollowupCaseID = result[refs.FollowupCase].ID
	}
	if err := w.audit.StoreCommit(ctx, record); err != nil {
		w.logger.Warn("audit write failed",
			zap.String("request_id", task.RequestID),
			zap.Error(err),
		)
	}
}

func isCommitError(err error) bool {
	var commitErr *uow.CommitError
	return errors.As(err, &commitErr)
}
