package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nbflow/internal/dbpool"
	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/engine"
	"github.com/smilemakc/nbflow/internal/eventbus"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/infrastructure/monitoring"
	"github.com/smilemakc/nbflow/internal/infrastructure/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	bus := eventbus.New()
	pools := dbpool.NewManager()
	t.Cleanup(pools.Close)

	scheduler := engine.NewScheduler(repo, bus, pools)
	return NewServer(scheduler, bus, monitoring.New(), logger.Nop(), ServerConfig{EnableCORS: true})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createCell(t *testing.T, srv *Server, cellType, code string) domain.Cell {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/notebook/cells", map[string]any{
		"type": cellType,
		"code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cell domain.Cell
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cell))
	return cell
}

func TestGetNotebook_Empty(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/notebook", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nb domain.Notebook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nb))
	assert.Empty(t, nb.Cells)
	assert.Equal(t, "", nb.Settings.DSN)
}

func TestCreateCell(t *testing.T) {
	srv := newTestServer(t)

	cell := createCell(t, srv, "imperative", "x = 1")
	assert.NotEmpty(t, cell.ID)
	assert.Equal(t, domain.CellTypeImperative, cell.Type)
	assert.Equal(t, "x = 1", cell.Code)
	assert.Equal(t, domain.CellStatusIdle, cell.Status)
}

func TestCreateCell_InvalidType(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/notebook/cells", map[string]any{
		"type": "haskell",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCell_MissingType(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/notebook/cells", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCell(t *testing.T) {
	srv := newTestServer(t)
	cell := createCell(t, srv, "imperative", "x = 1")

	rec := doJSON(t, srv, http.MethodPatch, "/notebook/cells/"+cell.ID, map[string]any{
		"code": "x = 2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated domain.Cell
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "x = 2", updated.Code)
}

func TestUpdateCell_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPatch, "/notebook/cells/ghost", map[string]any{
		"code": "x = 2",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCell(t *testing.T) {
	srv := newTestServer(t)
	cell := createCell(t, srv, "imperative", "x = 1")

	rec := doJSON(t, srv, http.MethodDelete, "/notebook/cells/"+cell.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/notebook/cells/"+cell.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPatch, "/notebook/settings", map[string]any{
		"dsn": "postgres://localhost/db",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var nb domain.Notebook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nb))
	assert.Equal(t, "postgres://localhost/db", nb.Settings.DSN)

	// Replacing with a null DSN clears it.
	rec = doJSON(t, srv, http.MethodPatch, "/notebook/settings", map[string]any{"dsn": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nb))
	assert.Equal(t, "", nb.Settings.DSN)
}

func TestRun_ReturnsRunID(t *testing.T) {
	srv := newTestServer(t)
	cell := createCell(t, srv, "imperative", "x = 1")

	rec := doJSON(t, srv, http.MethodPost, "/notebook/run", map[string]any{
		"cellId": cell.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunID int64 `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.RunID)
}

func TestRun_UnknownTrigger(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/notebook/run", map[string]any{
		"cellId": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_MissingCellID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/notebook/run", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestConnection_NoDSN(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/notebook/test-connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "no database connection configured")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_WithoutDSN(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/notebook", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/notebook", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestFullEditCycleThroughAPI(t *testing.T) {
	srv := newTestServer(t)

	a := createCell(t, srv, "imperative", "x = 10")
	b := createCell(t, srv, "imperative", "y = x + 5")

	// Synchronous run through the scheduler keeps the test deterministic.
	_, err := srv.scheduler.Run(context.Background(), a.ID)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/notebook", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nb domain.Notebook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nb))
	require.Len(t, nb.Cells, 2)

	byID := map[string]*domain.Cell{}
	for _, c := range nb.Cells {
		byID[c.ID] = c
	}
	assert.Equal(t, domain.CellStatusSuccess, byID[a.ID].Status)
	assert.Equal(t, domain.CellStatusSuccess, byID[b.ID].Status)
	assert.Equal(t, []string{"x"}, byID[a.ID].Defs)
	assert.Equal(t, []string{"x"}, byID[b.ID].Refs)
}
