package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jfaulkner/crm-bridge/internal/config"
	"github.com/jfaulkner/crm-bridge/internal/crm"
	"github.com/jfaulkner/crm-bridge/internal/dispatcher"
	"github.com/jfaulkner/crm-bridge/internal/events"
	"github.com/jfaulkner/crm-bridge/internal/metrics"
	"github.com/jfaulkner/crm-bridge/internal/renderer"
	"github.com/jfaulkner/crm-bridge/internal/storage"
	"github.com/jfaulkner/crm-bridge/internal/uow"
	"github.com/jfaulkner/crm-bridge/internal/webhook"
)

// Server wires HTTP handlers to the dispatcher and the external platforms.
type Server struct {
	router    chi.Router
	dispatch  *dispatcher.Dispatcher
	store     crm.Store
	resolver  *crm.Resolver
	publisher events.Publisher
	renderer  renderer.Renderer
	blobStore storage.BlobStore
	idGen     uow.IDGenerator
	clock     uow.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The store,
// resolver, publisher, renderer, and blob store may be nil when the matching
// subsystem is not configured; their endpoints then reject requests.
func NewServer(
	dispatch *dispatcher.Dispatcher,
	store crm.Store,
	resolver *crm.Resolver,
	publisher events.Publisher,
	pdfRenderer renderer.Renderer,
	blobStore storage.BlobStore,
	idGen uow.IDGenerator,
	clock uow.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatch:  dispatch,
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		renderer:  pdfRenderer,
		blobStore: blobStore,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/unitofwork", s.submitUnitOfWork)
		r.Get("/accounts", s.listAccounts)
		r.Post("/events", s.ingestEvent)
		r.Post("/documents", s.renderDocument)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type unitOfWorkRequest struct {
	AccountName string `json:"accountName"`
	LastName    string `json:"lastName"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	CallbackURL string `json:"callbackUrl"`
}

// submitUnitOfWork validates the request and acknowledges it with 201 before
// any backend work happens. The commit and the webhook delivery run on the
// worker pool after the response is gone.
func (s *Server) submitUnitOfWork(w http.ResponseWriter, r *http.Request) {
	var req unitOfWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := validateUnitOfWork(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	requestID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to assign request id")
		return
	}
	task := uow.Task{
		RequestID:   requestID,
		AccountName: req.AccountName,
		LastName:    req.LastName,
		Subject:     req.Subject,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		Submitted:   s.clock.Now().Unix(),
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), s.cfg.EnqueueTimeout())
	defer cancel()
	if err := s.dispatch.Enqueue(queueCtx, task); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", "try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to enqueue request")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"requestId": requestID,
		"status":    "accepted",
	})
}

func validateUnitOfWork(req unitOfWorkRequest) error {
	required := []struct {
		name  string
		value string
	}{
		{"accountName", req.AccountName},
		{"lastName", req.LastName},
		{"subject", req.Subject},
	}
	for _, field := range required {
		if field.value == "" {
			return &uow.ValidationError{Field: field.name, Reason: "is required"}
		}
	}
	return webhook.ValidateCallbackURL(req.CallbackURL)
}

const accountsQuery = "SELECT Id, Name FROM Account ORDER BY Name LIMIT 50"

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	store := s.store
	if name := r.URL.Query().Get("connection"); name != "" {
		resolved, err := s.resolver.Resolve(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_connection", err.Error())
			return
		}
		store = resolved
	}
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "crm_not_configured", "no CRM connection is configured")
		return
	}

	records, err := store.Query(r.Context(), accountsQuery)
	if err != nil {
		s.logger.Error("account query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "query_failed", "account query failed")
		return
	}

	accounts := make([]map[string]any, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, map[string]any{
			"id":   record["Id"],
			"name": record["Name"],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var event events.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "events_not_configured", "event forwarding is not configured")
		return
	}

	messageID, err := s.publisher.Publish(r.Context(), event)
	if err != nil {
		s.logger.Error("event publish failed", zap.String("event_type", event.Type), zap.Error(err))
		writeError(w, http.StatusBadGateway, "publish_failed", "event could not be forwarded")
		return
	}
	metrics.ObserveEventPublished()
	writeJSON(w, http.StatusAccepted, map[string]string{"messageId": messageID})
}

type documentRequest struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	RecordID string `json:"recordId"`
}

// renderDocument drives the PDF pipeline: render the page headlessly, stash
// the bytes in the blob store, then attach the document to the CRM.
func (s *Server) renderDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := validateDocument(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if s.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "renderer_disabled", "PDF rendering is not enabled")
		return
	}

	pdf, err := s.renderer.RenderPDF(r.Context(), req.URL)
	if err != nil {
		metrics.ObserveRender("failed")
		s.logger.Error("pdf render failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "render_failed", "page could not be rendered")
		return
	}
	metrics.ObserveRender("succeeded")

	requestID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to assign request id")
		return
	}

	var blobURI string
	if s.blobStore != nil {
		path := fmt.Sprintf("%s/%s.pdf", s.cfg.Storage.Prefix, requestID)
		blobURI, err = s.blobStore.PutObject(r.Context(), path, s.cfg.Storage.ContentType, bytes.NewReader(pdf))
		if err != nil {
			s.logger.Error("pdf blob write failed", zap.String("path", path), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage_failed", "document could not be stored")
			return
		}
	}

	var contentVersionID string
	if s.store != nil {
		contentVersionID, err = s.store.UploadFile(r.Context(), crm.File{
			Name:        req.FileName,
			ContentType: s.cfg.Storage.ContentType,
			RecordID:    req.RecordID,
			Data:        pdf,
		})
		if err != nil {
			s.logger.Error("pdf upload failed", zap.String("file_name", req.FileName), zap.Error(err))
			writeError(w, http.StatusBadGateway, "upload_failed", "document could not be attached to the CRM")
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"blobUri":          blobURI,
		"contentVersionId": contentVersionID,
	})
}

func validateDocument(req documentRequest) error {
	if req.FileName == "" {
		return &uow.ValidationError{Field: "fileName", Reason: "is required"}
	}
	if req.URL == "" {
		return &uow.ValidationError{Field: "url", Reason: "is required"}
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return &uow.ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	return nil
}
