package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/model"
)

func fastWebhook(url string) *Webhook {
	w := NewWebhook(url, time.Second)
	w.retry.InitialBackoff = time.Millisecond
	w.retry.MaxBackoff = time.Millisecond
	return w
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL).Notify(context.Background(), Finished(progress(model.JobStatusCompleted)))
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, got.Kind)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 4, got.Progress.ProcessedItems)
}

func TestWebhook_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastWebhook(srv.URL).Notify(context.Background(), Event{RunID: "run-1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL).Notify(context.Background(), Event{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}
