package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/api/handler"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/repository"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/service"
)

const testToken = "test-token"

type testServer struct {
	srv  *httptest.Server
	repo *repository.JobRepository
	hub  *SocketHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "jobs.db"),
		AutoMigrate:     true,
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)

	repo := repository.NewJobRepository(db)
	hub := NewSocketHub(nil)
	runner := service.NewRunner(repo, hub, nil, &service.RunnerConfig{
		BatchSize:     20,
		RowDelay:      time.Millisecond,
		LitigatorRate: 0.04,
		DNCRate:       0.12,
	})
	jobHandler := handler.NewJobHandler(repo, runner, nil)

	router := SetupRouter(jobHandler, hub, &config.ServerConfig{
		Mode:  "test",
		Token: testToken,
		CORS:  config.CORSConfig{AllowAllOrigins: true},
	}, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, repo: repo, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (s *testServer) waitTerminal(t *testing.T, jobID string) *domain.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.repo.GetByID(t.Context(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

func TestHealthEndpointIsOpen(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobEndpointsRequireBearerToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/jobs", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/jobs", map[string]interface{}{
		"script_id": "script-a",
		"job_type":  "bulk-wipe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobLifecycleOverREST(t *testing.T) {
	s := newTestServer(t)

	// Submit; the backend rejects a second submission while busy.
	resp, raw := s.do(t, http.MethodPost, "/jobs", map[string]interface{}{
		"script_id": "script-a",
		"job_type":  "single-script",
		"row_limit": 2000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var job domain.JobSnapshot
	require.NoError(t, json.Unmarshal(raw, &job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusRunning, job.Status)

	resp, _ = s.do(t, http.MethodPost, "/jobs", map[string]interface{}{
		"script_id": "script-b",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The list endpoint shows the job first.
	resp, raw = s.do(t, http.MethodGet, "/jobs?offset=0&limit=20", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Jobs []domain.JobSnapshot `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.NotEmpty(t, list.Jobs)
	assert.Equal(t, job.ID, list.Jobs[0].ID)

	// Cancel is an acknowledgement, not a synchronous stop.
	resp, _ = s.do(t, http.MethodPost, "/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	final := s.waitTerminal(t, job.ID)
	assert.Equal(t, domain.JobStatusCancelled, final.Status)

	// Cancelling a finished job conflicts.
	resp, _ = s.do(t, http.MethodPost, "/jobs/"+job.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The full log file is served as plain text.
	resp, raw = s.do(t, http.MethodGet, "/jobs/"+job.ID+"/log", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "[SNOWFLAKE]")
}

func TestCancelUnknownJob(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodPost, "/jobs/no-such-job/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodPost, "/jobs/preview", map[string]interface{}{
		"script_ids": []string{"script-a", "script-b"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result domain.PreviewResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, result.TotalRows, result.AlreadyProcessed+result.NewToProcess)
	assert.NotEmpty(t, result.Rows)

	// Preview with no scripts is a validation error.
	resp, _ = s.do(t, http.MethodPost, "/jobs/preview", map[string]interface{}{
		"script_ids": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocketRejectsBadToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/socket?token=wrong")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketRoomScopedDelivery(t *testing.T) {
	s := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/socket?token=" + testToken

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	join, err := domain.NewEnvelope(domain.EventJoinJob, domain.JoinPayload{JobID: "job-1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(join))

	require.Eventually(t, func() bool {
		return s.hub.RoomSize("job-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Events for another job's room never reach this observer.
	other, err := domain.NewEnvelope(domain.EventJobLog, domain.LogEvent{Level: "info", Message: "other"})
	require.NoError(t, err)
	s.hub.Publish("job-2", other)

	mine, err := domain.NewEnvelope(domain.EventJobLog, domain.LogEvent{Level: "info", Message: "mine"})
	require.NoError(t, err)
	s.hub.Publish("job-1", mine)

	var got domain.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))

	var ev domain.LogEvent
	require.NoError(t, got.Decode(&ev))
	assert.Equal(t, "mine", ev.Message)

	// leave_job detaches the observer from the room.
	leave, err := domain.NewEnvelope(domain.EventLeaveJob, domain.JoinPayload{JobID: "job-1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(leave))

	require.Eventually(t, func() bool {
		return s.hub.RoomSize("job-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
