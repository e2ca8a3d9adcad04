package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/factllm/pkg/adapters/events/memory"
	storage "github.com/aescanero/factllm/pkg/adapters/storage/memory"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.InMemoryEventBus, *storage.InMemoryRunStorage) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	bus := memory.NewInMemoryEventBus(logger)
	store := storage.NewInMemoryRunStorage()

	router := gin.New()
	router.GET("/api/v1/runs/:id/ws", NewHandler(bus, store, logger).HandleRunStream)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close()
	})
	return srv, bus, store
}

func dial(t *testing.T, srv *httptest.Server, runID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/runs/" + runID + "/ws"
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestStreamsOnlyTheRequestedRun(t *testing.T) {
	srv, bus, store := newTestServer(t)
	ctx := context.Background()

	run := domain.NewRun("run-1", []string{"a"}, "", domain.CallOptions{}, time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	conn, _, err := dial(t, srv, "run-1")
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade completes, so keep
	// publishing until the first event gets through.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			_ = bus.Publish(ctx, ports.TopicProgress, ports.Event{ID: "other", Type: ports.EventTypeItemInFlight, RunID: "run-2"})
			_ = bus.Publish(ctx, ports.TopicProgress, ports.Event{ID: "mine", Type: ports.EventTypeItemInFlight, RunID: "run-1"})
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first ports.Event
	err = conn.ReadJSON(&first)
	close(stop)
	require.NoError(t, err)

	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, ports.EventTypeItemInFlight, first.Type)

	require.NoError(t, bus.Publish(ctx, ports.TopicProgress, ports.Event{ID: "done", Type: ports.EventTypeRunCompleted, RunID: "run-1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event ports.Event
		err := conn.ReadJSON(&event)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return
		}
		assert.Equal(t, "run-1", event.RunID)
	}
}

func TestFinishedRunSendsFinalEvent(t *testing.T) {
	srv, _, store := newTestServer(t)

	run := domain.NewRun("run-done", []string{"a"}, "", domain.CallOptions{}, time.Now())
	run.Status = domain.RunStatusCancelled
	require.NoError(t, store.SaveRun(context.Background(), run))

	conn, _, err := dial(t, srv, "run-done")
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ports.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, ports.EventTypeRunCancelled, event.Type)
}

func TestUnknownRunIsRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, resp, err := dial(t, srv, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestForwardNeverDropsFinalEvent(t *testing.T) {
	h := NewHandler(nil, nil, zaptest.NewLogger(t))
	ch := make(chan ports.Event, 1)
	forward := h.forward("run-1", ch)
	ctx := context.Background()

	require.NoError(t, forward(ctx, ports.Event{ID: "p1", Type: ports.EventTypeItemInFlight, RunID: "run-1"}))
	// Buffer is full: progress is dropped without blocking
	require.NoError(t, forward(ctx, ports.Event{ID: "p2", Type: ports.EventTypeItemCompleted, RunID: "run-1"}))

	done := make(chan error, 1)
	go func() {
		done <- forward(ctx, ports.Event{ID: "final", Type: ports.EventTypeRunCompleted, RunID: "run-1"})
	}()

	select {
	case <-done:
		t.Fatal("final event returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "p1", (<-ch).ID)
	require.NoError(t, <-done)
	assert.Equal(t, "final", (<-ch).ID)
}

func TestForwardGivesUpOnFinalEventWhenClientLeaves(t *testing.T) {
	h := NewHandler(nil, nil, zaptest.NewLogger(t))
	ch := make(chan ports.Event, 1)
	ch <- ports.Event{ID: "p1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.forward("run-1", ch)(ctx, ports.Event{Type: ports.EventTypeRunFailed, RunID: "run-1"})
	assert.ErrorIs(t, err, context.Canceled)
}
