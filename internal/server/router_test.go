package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/go-spend-sync/internal/config"
	"github.com/okazakov/go-spend-sync/internal/deltasvc"
	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/realtime"
	"github.com/okazakov/go-spend-sync/internal/token"
)

func newTestRouter(t *testing.T) (*httptest.Server, *token.Manager) {
	t.Helper()
	log := logger.Nop()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens, err := token.NewManager("spend-sync", "test-secret", time.Hour)
	require.NoError(t, err)

	api := deltasvc.NewHandler(deltasvc.NewService(db, log), tokens, log)
	bridge := realtime.NewBridge(docstore.NewMemory(), log)

	srv := httptest.NewServer(NewRouter(api, bridge, tokens, log))
	t.Cleanup(srv.Close)
	return srv, tokens
}

func TestRouter_Healthz(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_DeltaRequiresToken(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/api/delta", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_WatchRequiresToken(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/ws/watch?group_id=g1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_DeltaRejectsBadToken(t *testing.T) {
	srv, _ := newTestRouter(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/delta", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewServer_RequiresAddress(t *testing.T) {
	log := logger.Nop()
	_, err := NewServer(http.NewServeMux(), config.Server{}, log)
	require.ErrorIs(t, err, errNoServersAreCreated)

	srv, err := NewServer(http.NewServeMux(), config.Server{HTTPAddress: "localhost:0"}, log)
	require.NoError(t, err)
	require.NotNil(t, srv)
}
