package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/event"
	"github.com/averin/conduit/pkg/orchestrator"
)

func newTestServer(t *testing.T, secret string, capacity int, interval time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	orch := orchestrator.New(
		orchestrator.Config{Capacity: capacity, BusBuffer: 64},
		engine.NewMockEngine(interval),
		zerolog.Nop(),
	)
	srv, err := NewServer(Config{
		Port:         8080,
		SharedSecret: secret,
		Orchestrator: orch,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createAgent(t *testing.T, baseURL string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/agent/create", `{"name":"t","maxTurns":3}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateValidation(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "valid", body: `{"name":"a"}`, want: http.StatusCreated},
		{name: "missing name", body: `{}`, want: http.StatusBadRequest},
		{name: "empty name", body: `{"name":""}`, want: http.StatusBadRequest},
		{name: "name too long", body: `{"name":"` + strings.Repeat("x", 201) + `"}`, want: http.StatusBadRequest},
		{name: "bad model", body: `{"name":"a","model":"gpt-5"}`, want: http.StatusBadRequest},
		{name: "zero maxTurns", body: `{"name":"a","maxTurns":0}`, want: http.StatusBadRequest},
		{name: "negative budget", body: `{"name":"a","maxBudgetUsd":-1}`, want: http.StatusBadRequest},
		{name: "tools not strings", body: `{"name":"a","allowedTools":[1]}`, want: http.StatusBadRequest},
		{name: "not json", body: `{{`, want: http.StatusBadRequest},
		{name: "full config", body: `{"name":"a","model":"opus","maxTurns":5,"maxBudgetUsd":1.5,"allowedTools":["Read"],"permissionMode":"plan"}`, want: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/create", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSharedSecret(t *testing.T) {
	_, ts := newTestServer(t, "hunter2", 10, time.Millisecond)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/create", `{"name":"a"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/agent/create", bytes.NewBufferString(`{"name":"a"}`))
	require.NoError(t, err)
	req.Header.Set("X-Conduit-Secret", "hunter2")
	authResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authResp.Body.Close()
	assert.Equal(t, http.StatusCreated, authResp.StatusCode)
}

func TestCreateAtCapacity(t *testing.T) {
	_, ts := newTestServer(t, "", 1, time.Millisecond)

	createAgent(t, ts.URL)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/create", `{"name":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestQueryLifecycle(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":"hello"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		statusResp, statusBody := doJSON(t, http.MethodGet, ts.URL+"/agent/"+id+"/status", "")
		require.Equal(t, http.StatusOK, statusResp.StatusCode)
		if statusBody["status"] == "completed" {
			sessResp, sessBody := doJSON(t, http.MethodGet, ts.URL+"/agent/"+id+"/session", "")
			require.Equal(t, http.StatusOK, sessResp.StatusCode)
			assert.Equal(t, true, sessBody["canResume"])
			assert.NotEmpty(t, sessBody["engineSessionId"])
			assert.Positive(t, sessBody["inputTokens"])
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("query never completed")
}

func TestQueryErrors(t *testing.T) {
	_, ts := newTestServer(t, "", 10, 200*time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/missing/query", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":"one"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The mock paces messages slowly, so the second query conflicts.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":"two"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInterruptAndDelete(t *testing.T) {
	_, ts := newTestServer(t, "", 10, 200*time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/interrupt", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/agent/missing/interrupt", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/agent/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/agent/"+id+"/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Delete stays 200 for ids that no longer exist.
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/agent/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAgents(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, err := http.Get(ts.URL + "/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []AgentSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "t", list[0].Name)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSSEStream(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, err := http.Get(ts.URL + "/agent/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan event.Event, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev event.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				events <- ev
			}
		}
	}()

	first := <-events
	assert.Equal(t, event.TypeConnected, first.Type)
	assert.Equal(t, id, first.AgentID)

	queryResp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":"go"}`)
	require.Equal(t, http.StatusAccepted, queryResp.StatusCode)

	deadline := time.After(5 * time.Second)
	var seen []event.Type
	for {
		select {
		case ev := <-events:
			seen = append(seen, ev.Type)
			if ev.Type == event.TypeSessionEnd {
				assert.Equal(t, event.ReasonCompleted, ev.Reason)
				assert.Contains(t, seen, event.TypeSessionStart)
				assert.Contains(t, seen, event.TypeUserMessage)
				assert.Contains(t, seen, event.TypeToolStart)
				return
			}
		case <-deadline:
			t.Fatalf("no session_end over SSE, saw %v", seen)
		}
	}
}

func TestSSEUnknownAgent(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	resp, err := http.Get(ts.URL + "/agent/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	id := createAgent(t, ts.URL)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/agent/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first event.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, event.TypeConnected, first.Type)

	queryResp, _ := doJSON(t, http.MethodPost, ts.URL+"/agent/"+id+"/query", `{"prompt":"go"}`)
	require.Equal(t, http.StatusAccepted, queryResp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev event.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == event.TypeSessionEnd {
			assert.Equal(t, event.ReasonCompleted, ev.Reason)
			return
		}
	}
}

func TestDeleteEndsSSEStream(t *testing.T) {
	_, ts := newTestServer(t, "", 10, time.Millisecond)
	id := createAgent(t, ts.URL)

	resp, err := http.Get(ts.URL + "/agent/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	done := make(chan event.Event, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var last event.Event
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last)
		}
		done <- last
	}()

	time.Sleep(50 * time.Millisecond)
	delResp, _ := doJSON(t, http.MethodDelete, ts.URL+"/agent/"+id, "")
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	select {
	case last := <-done:
		assert.Equal(t, event.TypeSessionEnd, last.Type)
		assert.Equal(t, event.ReasonDeleted, last.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("SSE stream did not end after delete")
	}
}
