package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"claims-agent/internal/usecase"
)

func TestRouter_ProcessClaim(t *testing.T) {
	f := newFixture(t)
	f.turns.out = usecase.TurnOutput{AIMessage: "Hi there", Persisted: true}

	srv := httptest.NewServer(NewRouter(f.h, nil))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/process-claim", strings.NewReader(`{"policyNumber":"P-100","message":"Hello"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", testAPIKey)
	req.Header.Set("X-Correlation-Id", "corr-7")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":200,"aiMessage":"Hi there"}`, string(body))
	require.Equal(t, "corr-7", resp.Header.Get("X-Correlation-Id"))
	require.Equal(t, "true", resp.Header.Get("X-Turn-Persisted"))
	require.Equal(t, usecase.TurnInput{PolicyNumber: "P-100", Message: "Hello", CorrelationID: "corr-7"}, f.turns.in)
}

func TestRouter_Upload(t *testing.T) {
	f := newFixture(t)
	f.documents.out = usecase.UploadOutput{Filename: "photo.png", Location: "uploads/claims/P-100/photo.png", Persisted: true}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("policyNumber", "P-100"))
	fw, err := w.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G', 0x00, 0xff})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-API-KEY", testAPIKey)
	NewRouter(f.h, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}, f.documents.in.Data)
	require.Equal(t, "photo.png", f.documents.in.Filename)
}

func TestRouter_LivenessAndMetrics(t *testing.T) {
	f := newFixture(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("claims_agent_turns_total 1\n"))
	})
	router := NewRouter(f.h, metrics)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "claims_agent_turns_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/process-claim", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
