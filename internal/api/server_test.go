package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jfaulkner/crm-bridge/internal/config"
	"github.com/jfaulkner/crm-bridge/internal/crm"
	"github.com/jfaulkner/crm-bridge/internal/dispatcher"
	"github.com/jfaulkner/crm-bridge/internal/events"
	idgen "github.com/jfaulkner/crm-bridge/internal/id/uuid"
	"github.com/jfaulkner/crm-bridge/internal/metrics"
	pubmem "github.com/jfaulkner/crm-bridge/internal/publisher/memory"
	queuemem "github.com/jfaulkner/crm-bridge/internal/queue/memory"
	storemem "github.com/jfaulkner/crm-bridge/internal/storage/memory"
	"github.com/jfaulkner/crm-bridge/internal/uow"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeStore struct {
	queryRecords []crm.Record
	queryErr     error
	queries      []string
	uploads      []crm.File
	uploadID     string
	uploadErr    error
	commits      int
}

func (f *fakeStore) Query(_ context.Context, soql string) ([]crm.Record, error) {
	f.queries = append(f.queries, soql)
	return f.queryRecords, f.queryErr
}

func (f *fakeStore) Commit(_ context.Context, _ *uow.Graph) (uow.CommitResult, error) {
	f.commits++
	return nil, nil
}

func (f *fakeStore) UploadFile(_ context.Context, file crm.File) (string, error) {
	f.uploads = append(f.uploads, file)
	return f.uploadID, f.uploadErr
}

type fakeRenderer struct {
	pdf []byte
	err error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, _ string) ([]byte, error) {
	return f.pdf, f.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type harness struct {
	server    *Server
	queue     *queuemem.Queue
	store     *fakeStore
	publisher *pubmem.Publisher
	blobs     *storemem.BlobStore
}

func newHarness(t *testing.T, mutate func(*harness, *config.Config)) *harness {
	t.Helper()

	cfg := config.Config{}
	cfg.UnitOfWork.EnqueueTimeoutSec = 1
	cfg.Storage.Prefix = "documents"
	cfg.Storage.ContentType = "application/pdf"

	h := &harness{
		queue:     queuemem.NewQueue(8),
		store:     &fakeStore{uploadID: "068000000000001"},
		publisher: pubmem.New(),
		blobs:     storemem.NewBlobStore(),
	}
	if mutate != nil {
		mutate(h, &cfg)
	}

	resolver, err := crm.NewResolver(nil)
	require.NoError(t, err)

	h.server = NewServer(
		dispatcher.New(h.queue, nil),
		h.store,
		resolver,
		h.publisher,
		&fakeRenderer{pdf: []byte("%PDF-1.7")},
		h.blobs,
		idgen.New(),
		fixedClock{now: time.Unix(1700000000, 0)},
		cfg,
		zap.NewNop(),
	)
	return h
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitUnitOfWorkAccepted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/unitofwork", map[string]string{
		"accountName": "Globex",
		"lastName":    "Simpson",
		"subject":     "Broken widget",
		"description": "It broke.",
		"callbackUrl": "https://example.com/hook",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp["status"])
	require.NotEmpty(t, resp["requestId"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := h.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, resp["requestId"], task.RequestID)
	require.Equal(t, "Globex", task.AccountName)
	require.Equal(t, int64(1700000000), task.Submitted)
}

func TestSubmitUnitOfWorkMissingField(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/unitofwork", map[string]string{
		"accountName": "Globex",
		"subject":     "Broken widget",
		"callbackUrl": "https://example.com/hook",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "lastName")

	// Rejection happens before any backend interaction.
	require.Zero(t, h.store.commits)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.queue.Dequeue(ctx)
	require.Error(t, err)
}

func TestSubmitUnitOfWorkBadCallbackURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	for _, callback := range []string{"", "ftp://example.com/x", "not a url"} {
		rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/unitofwork", map[string]string{
			"accountName": "Globex",
			"lastName":    "Simpson",
			"subject":     "Broken widget",
			"callbackUrl": callback,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, callback)
		require.Contains(t, rec.Body.String(), "callbackUrl")
	}
}

func TestSubmitUnitOfWorkQueueFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(h *harness, _ *config.Config) {
		h.queue = queuemem.NewQueue(1)
	})
	require.NoError(t, h.queue.Enqueue(context.Background(), uow.Task{RequestID: "blocker"}))

	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/unitofwork", map[string]string{
		"accountName": "Globex",
		"lastName":    "Simpson",
		"subject":     "Broken widget",
		"callbackUrl": "https://example.com/hook",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "queue_full")
}

func TestListAccounts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(h *harness, _ *config.Config) {
		h.store.queryRecords = []crm.Record{
			{"Id": "001A", "Name": "Acme"},
			{"Id": "001B", "Name": "Globex"},
		}
	})
	rec := doJSON(t, h.server.Handler(), http.MethodGet, "/v1/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accounts []map[string]string `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 2)
	require.Equal(t, "Acme", resp.Accounts[0]["name"])
	require.Equal(t, []string{accountsQuery}, h.store.queries)
}

func TestListAccountsUnknownConnection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodGet, "/v1/accounts?connection=emea", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown_connection")
}

func TestIngestEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/events", events.Event{
		Type:    "order.created",
		Source:  "storefront",
		Payload: json.RawMessage(`{"orderId":"o-42"}`),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "mem-1")

	published := h.publisher.Events()
	require.Len(t, published, 1)
	require.Equal(t, "order.created", published[0].Type)
}

func TestIngestEventInvalid(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/events", events.Event{
		Payload: json.RawMessage(`{}`),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, h.publisher.Events())
}

func TestRenderDocument(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/documents", map[string]string{
		"url":      "https://example.com/invoice/42",
		"fileName": "invoice-42.pdf",
		"recordId": "001A",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "068000000000001", resp["contentVersionId"])
	require.Contains(t, resp["blobUri"], "memory://")
	require.Contains(t, resp["blobUri"], "documents/")

	require.Len(t, h.store.uploads, 1)
	upload := h.store.uploads[0]
	require.Equal(t, "invoice-42.pdf", upload.Name)
	require.Equal(t, "001A", upload.RecordID)
	require.Equal(t, []byte("%PDF-1.7"), upload.Data)
}

func TestRenderDocumentValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	cases := []map[string]string{
		{"fileName": "a.pdf"},
		{"url": "https://example.com/x"},
		{"url": "ftp://example.com/x", "fileName": "a.pdf"},
	}
	for _, body := range cases {
		rec := doJSON(t, h.server.Handler(), http.MethodPost, "/v1/documents", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *harness, cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "sekrit"
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, h.server.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
