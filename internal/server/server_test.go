package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "roadmap.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	orch, err := pipeline.New(pipeline.DefaultConfig(st, source.NewStaticLookup()))
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	s := New(&Config{Logger: log.New(io.Discard, "", 0)}, st, orch)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func sessionPayload() map[string]any {
	return map[string]any{
		"name": "Q4 planning",
		"capacity": map[string]any{
			"sprintLengthWeeks": 2,
			"teamVelocity":      10,
			"teamCount":         1,
			"startDate":         "2026-09-01T00:00:00Z",
		},
		"customItems": []map[string]any{
			{"title": "Auth service", "effortPoints": 5, "priority": 2},
			{"title": "Auth dashboard", "effortPoints": 5, "priority": 1, "dependsOn": []string{"Auth service"}},
		},
	}
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", sessionPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session = %d: %s", resp.StatusCode, body)
	}
	var session types.RoadmapSession
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.ID
}

func waitForTerminal(t *testing.T, st *store.Store, sessionID string) *types.RoadmapSession {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, err := st.GetSession(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if session.Status.IsTerminal() {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pipeline did not reach a terminal state")
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	ts, st := newTestServer(t)
	id := createSession(t, ts)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/generate", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate = %d: %s", resp.StatusCode, body)
	}

	session := waitForTerminal(t, st, id)
	if session.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (%s), want completed", session.Status, session.ErrorMessage)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != types.StatusCompleted || status.TotalItems != 2 {
		t.Errorf("status = %+v", status)
	}

	for _, path := range []string{"items", "segments", "dependencies", "themes", "milestones"} {
		resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/sessions/%s/%s", ts.URL, id, path), nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("list %s = %d: %s", path, resp.StatusCode, body)
		}
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateSession_InvalidPayload(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]any{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create invalid session = %d, want 400", resp.StatusCode)
	}
}

func TestGenerate_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/rs-nope/generate", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("generate unknown = %d, want 404", resp.StatusCode)
	}
}

func TestSegmentOverrideEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	id := createSession(t, ts)

	if resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/generate", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate = %d: %s", resp.StatusCode, body)
	}
	if s := waitForTerminal(t, st, id); s.Status != types.StatusCompleted {
		t.Fatalf("pipeline failed: %s", s.ErrorMessage)
	}

	segs, err := st.ListSegmentsBySession(context.Background(), id)
	if err != nil || len(segs) == 0 {
		t.Fatalf("segments = %v, %v", segs, err)
	}
	last := segs[len(segs)-1]

	// Legal move: push the last-scheduled segment later.
	resp, body := doJSON(t, http.MethodPatch,
		ts.URL+"/api/sessions/"+id+"/segments/"+last.ID, map[string]any{
			"itemId":       last.ItemID,
			"assignedTeam": last.AssignedTeam,
			"startSprint":  last.StartSprint + 3,
			"sprintCount":  last.SprintCount,
			"effortPoints": last.EffortPoints,
			"status":       last.Status,
			"version":      last.Version,
		})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch segment = %d: %s", resp.StatusCode, body)
	}
	var res overrideResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode override response: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].Version != last.Version+1 {
		t.Errorf("override response = %s", body)
	}

	// Stale version now conflicts at validation.
	resp, body = doJSON(t, http.MethodPatch,
		ts.URL+"/api/sessions/"+id+"/segments/"+last.ID, map[string]any{
			"itemId":       last.ItemID,
			"assignedTeam": last.AssignedTeam,
			"startSprint":  last.StartSprint + 4,
			"sprintCount":  last.SprintCount,
			"effortPoints": last.EffortPoints,
			"status":       last.Status,
			"version":      last.Version,
		})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("stale patch = %d: %s", resp.StatusCode, body)
	}
}

func TestExportEndpoint(t *testing.T) {
	ts, st := newTestServer(t)
	id := createSession(t, ts)
	if resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/generate", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatal("generate rejected")
	}
	waitForTerminal(t, st, id)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export json = %d", resp.StatusCode)
	}
	var snap map[string]json.RawMessage
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/export?format=csv", nil)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("segment_id")) {
		t.Errorf("export csv = %d: %.60s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/export?format=xml", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil || health["status"] != "ok" {
		t.Errorf("health body = %s", body)
	}
}
