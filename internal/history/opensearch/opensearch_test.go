package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/jarmgr/internal/history"
)

func TestSendAndRecent(t *testing.T) {
	var (
		mu     sync.Mutex
		docs   []history.Event
		search map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/jh/_doc":
			var e history.Event
			require.NoError(t, json.Unmarshal(body, &e))
			docs = append(docs, e)
			w.WriteHeader(http.StatusCreated)
		case "/jh/_search":
			require.NoError(t, json.Unmarshal(body, &search))
			hits := make([]map[string]any, 0, len(docs))
			for i := len(docs) - 1; i >= 0; i-- {
				hits = append(hits, map[string]any{"_source": docs[i]})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "jh")
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: now, ID: "api", PID: 7}))
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: now.Add(time.Second), ID: "api", PID: 7}))

	got, err := s.Recent(ctx, "api", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history.EventStop, got[0].Type)
	assert.EqualValues(t, 5, search["size"])
	assert.Contains(t, search, "query")
}

func TestSendReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	err := New(srv.URL, "x").Send(context.Background(), history.Event{Type: history.EventStart})
	assert.ErrorContains(t, err, "status 400")
}

func TestRecentOnMissingIndex(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	got, err := New(srv.URL, "").Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
