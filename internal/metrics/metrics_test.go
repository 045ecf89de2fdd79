package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, uowCommitsTotal)
	require.NotNil(t, httpRequestsTotal)

	// Observers must not panic once initialized.
	ObserveCommit("succeeded")
	ObserveDelivery("failed")
	ObserveEventPublished()
	ObserveRender("succeeded")
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	Init()

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerServesScrape(t *testing.T) {
	Init()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
