package uow

import (
	"context"
	"time"
)

// RecordResult describes the outcome of one intent after a commit.
type RecordResult struct {
	ID      string
	Success bool
	Err     string
}

// CommitResult maps every temporary reference in a committed graph to its
// permanent id. It is produced once per commit call and never persisted.
type CommitResult map[Ref]RecordResult

// CaseIDs carries the two case ids of the fixed workflow.
type CaseIDs struct {
	ServiceCaseID  string `json:"serviceCaseId"`
	FollowupCaseID string `json:"followupCaseId"`
}

// CallbackEnvelope is the body POSTed to the caller-supplied webhook after a
// successful commit.
type CallbackEnvelope struct {
	AccountID string  `json:"accountId"`
	ContactID string  `json:"contactId"`
	Cases     CaseIDs `json:"cases"`
}

// Task is a queued unit-of-work request. It captures everything the worker
// needs by value since the originating HTTP request is gone by the time the
// task runs.
type Task struct {
	RequestID   string
	AccountName string
	LastName    string
	Subject     string
	Description string
	CallbackURL string
	Submitted   int64
}

// CommitStatus labels an audit ledger row.
type CommitStatus string

// Audit ledger statuses.
const (
	CommitStatusSucceeded CommitStatus = "succeeded"
	CommitStatusFailed    CommitStatus = "failed"
)

// CommitRecord is one audit ledger row per attempted commit.
type CommitRecord struct {
	RequestID      string
	AccountID      string
	ContactID      string
	ServiceCaseID  string
	FollowupCaseID string
	Status         CommitStatus
	ErrorText      string
	CommittedAt    time.Time
}

// Queue moves tasks from the HTTP handlers to the workers.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Notifier delivers the callback envelope to a webhook URL.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, envelope CallbackEnvelope) error
}

// AuditStore persists commit records.
type AuditStore interface {
	StoreCommit(ctx context.Context, record CommitRecord) error
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints request ids.
type IDGenerator interface {
	NewID() (string, error)
}
