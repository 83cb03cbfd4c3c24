package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/caregap/internal/config"
	"github.com/BartekS5/caregap/internal/etl"
	"github.com/BartekS5/caregap/internal/preview"
	"github.com/BartekS5/caregap/internal/rules"
	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/models"
)

const hillCSV = "Patient,DOB,Phone,Annual Wellness Visit Q2,Eye Exam Q2\n" +
	"Jane Doe,5/1/1980,555-123-4567,Compliant,\n" +
	"John Roe,1970-01-01,,nc,nc\n"

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
	cache   *preview.Cache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	systems, err := config.LoadSystems("../../configs/systems")
	require.NoError(t, err)

	st := store.NewMemoryStore()
	cache := preview.New(time.Minute)
	pipeline := etl.NewPipeline(systems, st, cache)
	executor := etl.NewExecutor(st, cache, rules.NewIntervalCalculator(), st)

	return &testServer{
		handler: NewServer(NewHandlers(systems, pipeline, executor, cache)).Router(),
		store:   st,
		cache:   cache,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, systemID, mode, csv string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("systemId", systemID))
	if mode != "" {
		require.NoError(t, mw.WriteField("mode", mode))
	}
	fw, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestListSystems(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/systems", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]systemInfo](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "hill", list[0].ID)
	assert.Equal(t, "Hill Healthcare", list[0].Name)
}

func TestPreviewAndExecute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, uploadRequest(t, "hill", "", hillCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[models.PreviewEntry](t, rec)
	assert.Equal(t, models.ModeMerge, entry.Mode)
	assert.Equal(t, 3, entry.Diff.Summary.Inserts)
	assert.Equal(t, 2, entry.Diff.Summary.NewPatients)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/preview/"+entry.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/preview/"+entry.ID+"/extend",
		bytes.NewBufferString(`{"ttlMinutes": 10}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/cache/stats", nil))
	assert.Equal(t, models.CacheStats{TotalEntries: 1, ActiveEntries: 1}, decode[models.CacheStats](t, rec))

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/execute/"+entry.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ExecutionResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Stats.Inserted)
	assert.Equal(t, 2, result.Stats.PatientsCreated)
	assert.Len(t, s.store.Measures(), 3)

	// consumed
	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/execute/"+entry.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePreview_BadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, uploadRequest(t, "nope", "merge", hillCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, uploadRequest(t, "hill", "append", hillCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, uploadRequest(t, "hill", "merge", "Patient,Phone\nJane Doe,555\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "DOB")

	rec = s.do(t, uploadRequest(t, "hill", "merge", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/preview/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/preview/missing/extend", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/import/preview/missing", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, rec)["deleted"])
}

func TestExecutePreviewInProgress(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, uploadRequest(t, "hill", "merge", hillCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[models.PreviewEntry](t, rec)

	_, err := s.cache.Claim(entry.ID)
	require.NoError(t, err)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/execute/"+entry.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, s.store.Measures())

	s.cache.Release(entry.ID)
	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/import/execute/"+entry.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
