package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"onionctl/internal/bridges"
	"onionctl/internal/config"
	"onionctl/internal/control"
	"onionctl/internal/tunnel"
	"onionctl/internal/tunnel/tunneltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *tunneltest.Fake, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tor.log"), []byte("Bootstrapped 100%\n"), 0o600))

	fake := tunneltest.New()
	f := control.New(control.Deps{
		Store:  bridges.NewStore(filepath.Join(dir, "bridges.yaml")),
		Tunnel: fake,
		LogSources: []config.LogSourceDefinition{
			{Name: "tor", Kind: config.LogSourceFile, Path: filepath.Join(dir, "tor.log")},
		},
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, f.Init())
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return New(f, config.ListenerConfig{Host: "127.0.0.1", Port: 0}), fake, dir
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Stopped", got.Display)
	assert.Equal(t, "No Bridges", got.Transport)
	assert.False(t, got.UnsavedChanges)
}

func TestTransports(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodGet, "/api/transports", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []transportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, bridges.TransportNone, got[0].Kind)
	assert.Equal(t, "Custom Bridges", got[3].DisplayName)
}

func TestPutBridges(t *testing.T) {
	s, _, dir := newTestServer(t)
	h := s.Router()

	rec := do(t, h, http.MethodPut, "/api/bridges", `{"transport":"custom","customBridges":["# disabled"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err := os.Stat(filepath.Join(dir, "bridges.yaml"))
	assert.True(t, os.IsNotExist(err))

	rec = do(t, h, http.MethodPut, "/api/bridges", `{"transport":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/bridges", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/bridges", `{"transport":"custom","customBridges":["obfs4 192.0.2.1:443 FP cert=x"," "]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved saveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, bridges.TransportCustom, saved.Saved.Transport)
	assert.Equal(t, []string{"obfs4 192.0.2.1:443 FP cert=x"}, saved.Saved.CustomBridges)
	assert.False(t, saved.ReconnectRequired)

	rec = do(t, h, http.MethodGet, "/api/bridges", "")
	var got bridgesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, saved.Saved, got.Saved)
	assert.False(t, got.UnsavedChanges)
}

func TestConnectAndCircuits(t *testing.T) {
	s, fake, _ := newTestServer(t)
	h := s.Router()
	fake.Circuits = []tunnel.CircuitDescriptor{tunneltest.Circuit("7", "guard", "middle", "exit")}

	rec := do(t, h, http.MethodGet, "/api/circuits", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/circuits/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display": "Connected"`)

	rec = do(t, h, http.MethodGet, "/api/circuits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []tunnel.CircuitDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "guard > middle > exit", list[0].PathString())

	rec = do(t, h, http.MethodPost, "/api/circuits/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	require.Len(t, steps, 3)
	assert.EqualValues(t, "done", steps[2].Step)
	assert.Equal(t, 1, steps[2].Count)
	assert.NotEmpty(t, steps[0].CorrelationID)
	assert.Equal(t, [][]string{{"7"}}, fake.ClosedBatches())

	rec = do(t, h, http.MethodPost, "/api/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display": "Stopped"`)
}

func TestConnectFailure(t *testing.T) {
	s, fake, _ := newTestServer(t)
	fake.StartErr = assert.AnError
	rec := do(t, s.Router(), http.MethodPost, "/api/connect", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), assert.AnError.Error())
}

func readSSE(t *testing.T, sc *bufio.Scanner) (string, string) {
	t.Helper()
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			return event, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", ""
}

func TestLogStream(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/logs/tor/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	event, data := readSSE(t, bufio.NewScanner(resp.Body))
	assert.Equal(t, "snapshot", event)
	assert.Contains(t, data, `"content":"Bootstrapped 100%\n"`)
	assert.Equal(t, "tor", s.facade.ActiveLog())
}

func TestLogStreamUnknownSource(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodGet, "/api/logs/nope/stream", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventStream(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?type=connection.", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	// the retry preamble is flushed once the subscription exists
	require.True(t, sc.Scan())
	assert.Equal(t, "retry: 5000", sc.Text())

	_, err = s.facade.Connect(ctx)
	require.NoError(t, err)

	event, data := readSSE(t, sc)
	assert.Equal(t, "connection.starting", event)
	assert.Contains(t, data, `"source":"Connection"`)
}
