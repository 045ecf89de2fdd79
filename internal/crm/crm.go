// Package crm provides access to the remote CRM data API: SOQL queries,
// composite graph commits, and file uploads.
package crm

import (
	"context"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

// Record is a single row returned by a query.
type Record map[string]any

// File is a document to attach to the CRM, optionally linked to a record.
type File struct {
	Name        string
	ContentType string
	RecordID    string
	Data        []byte
}

// Store is the remote data store surface consumed by the service. The CRM
// owns query semantics, commit atomicity, and record storage; this interface
// only shapes requests and responses.
type Store interface {
	Query(ctx context.Context, query string) ([]Record, error)
	Commit(ctx context.Context, graph *uow.Graph) (uow.CommitResult, error)
	UploadFile(ctx context.Context, file File) (string, error)
}
