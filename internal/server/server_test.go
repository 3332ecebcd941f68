package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/share"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

type capture struct {
	mu     sync.Mutex
	events []event.TranslationEvent
}

func (c *capture) Publish(_ context.Context, evt event.TranslationEvent) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func testConfig(t *testing.T, pub event.Publisher) Config {
	t.Helper()
	codec, err := share.NewCodec(0)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	return Config{
		Registry:   schema.DefaultRegistry(),
		Translator: pql.New(pql.WithLogger(pql.Discard)),
		Codec:      codec,
		Tracker:    usage.NewTracker(),
		Sessions:   session.NewManager(time.Hour, time.Hour),
		Publisher:  pub,
	}
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testConfig(t, nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_ParseRecordsEvent(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(NewRouter(testConfig(t, c)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/pql/parse", "application/json",
		strings.NewReader(`{"pql":"eq(donor.gender,\"male\")"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 1)
	assert.Equal(t, "http", c.events[0].Source)
	assert.Equal(t, event.KindParse, c.events[0].Kind)
	assert.True(t, c.events[0].OK)
}

func TestRouter_ReplRoutes(t *testing.T) {
	cfg := testConfig(t, nil)
	srv := httptest.NewServer(NewRouter(cfg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/repl/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.NotNil(t, cfg.Sessions.Get(sess.ID))

	resp2, err := http.Get(srv.URL + "/api/repl/schema")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var catalog map[string]map[string]struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&catalog))
	assert.Equal(t, "enum", catalog["donor"]["donor.gender"].Type)
}

func TestRouter_NotFound(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testConfig(t, nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/persons")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRun_Shutdown(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t, nil)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	errc := make(chan error, 1)
	go func() { errc <- Run(context.Background(), cfg) }()

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after listen failed")
	}
}
