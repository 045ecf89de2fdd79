package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

func TestStoreCommitInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCommitStoreWithPool(mock, "uow_commits")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	record := uow.CommitRecord{
		RequestID:      "req-1",
		AccountID:      "001a",
		ContactID:      "003a",
		ServiceCaseID:  "500a",
		FollowupCaseID: "500b",
		Status:         uow.CommitStatusSucceeded,
		CommittedAt:    now,
	}

	mock.ExpectExec("INSERT INTO uow_commits").
		WithArgs(
			record.RequestID,
			record.AccountID,
			record.ContactID,
			record.ServiceCaseID,
			record.FollowupCaseID,
			"succeeded",
			"",
			record.CommittedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreCommit(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCommitWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCommitStoreWithPool(mock, "uow_commits")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO uow_commits").
		WithArgs(
			"req-2",
			"", "", "", "",
			"failed",
			"commit failed: boom",
			pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("connection reset"))

	err = store.StoreCommit(context.Background(), uow.CommitRecord{
		RequestID: "req-2",
		Status:    uow.CommitStatusFailed,
		ErrorText: "commit failed: boom",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert commit row")
}

func TestStoreCommitValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCommitStoreWithPool(mock, "")
	require.NoError(t, err)

	require.Error(t, store.StoreCommit(context.Background(), uow.CommitRecord{}))

	_, err = NewCommitStoreWithPool(nil, "uow_commits")
	require.Error(t, err)

	_, err = NewCommitStoreWithPool(mock, "bad-table-name;")
	require.Error(t, err)
}
