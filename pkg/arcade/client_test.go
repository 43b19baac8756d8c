package arcade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentswarm/swarmd/pkg/config"
)

// fakeBackend records every command and answers with canned results.
type fakeBackend struct {
	mu       sync.Mutex
	commands []commandRequest
	paths    []string
	users    []string
	results  map[string][]map[string]any // substring match on command
	status   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: make(map[string][]map[string]any), status: http.StatusOK}
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		user, _, _ := r.BasicAuth()

		f.mu.Lock()
		f.commands = append(f.commands, req)
		f.paths = append(f.paths, r.URL.EscapedPath())
		f.users = append(f.users, user)
		status := f.status
		var result []map[string]any
		for substr, res := range f.results {
			if substr != "" && strings.Contains(req.Command, substr) {
				result = res
				break
			}
		}
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	}
}

func (f *fakeBackend) lastCommand() commandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

func (f *fakeBackend) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func newTestClient(t *testing.T, backend *fakeBackend, database string) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return NewClient(config.ArcadeDBOptions{
		URL:      srv.URL,
		Database: database,
		User:     "root",
		Password: "secret",
	}, nil)
}

func TestCommand_WireContract(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend, "swarm db")

	_, err := client.Command(context.Background(), "SELECT FROM SwarmTask", map[string]any{"k": "v"})
	require.NoError(t, err)

	// Database name is URL-escaped in the path.
	backend.mu.Lock()
	path := backend.paths[0]
	user := backend.users[0]
	backend.mu.Unlock()
	assert.Equal(t, "/api/v1/command/swarm%20db", path)
	assert.Equal(t, "root", user)

	req := backend.lastCommand()
	assert.Equal(t, "sql", req.Language)
	assert.Equal(t, "record", req.Serializer)
	assert.True(t, req.AutoCommit)
	assert.Equal(t, "SELECT FROM SwarmTask", req.Command)
	assert.Equal(t, map[string]any{"k": "v"}, req.Params)
}

func TestCommand_Non2xxIsError(t *testing.T) {
	backend := newFakeBackend()
	backend.status = http.StatusInternalServerError
	client := newTestClient(t, backend, "swarm")

	_, err := client.Command(context.Background(), "SELECT FROM SwarmTask", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestAsInt64_NumbersAsStrings(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(7), 7, true},
		{float64(7), 7, true},
		{"7", 7, true},
		{json.Number("7"), 7, true},
		{"not-a-number", 0, false},
		{nil, 0, false},
	}
	for _, tc := range tests {
		got, ok := asInt64(tc.in)
		assert.Equal(t, tc.ok, ok)
		if ok {
			assert.Equal(t, tc.want, got)
		}
	}
}
