package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBufferSize = 64
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunLookup finds a run by id, returning ports.ErrRunNotFound when unknown
type RunLookup interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
}

// Handler streams run progress events over WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	runs     RunLookup
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, runs RunLookup, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		runs:     runs,
		logger:   logger,
	}
}

// HandleRunStream streams the progress events of one run until the run
// finishes or the client goes away
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	if _, err := h.runs.GetRun(c.Request.Context(), runID); err != nil {
		if errors.Is(err, ports.ErrRunNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		h.logger.Error("failed to look up run", zap.String("run_id", runID), zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// Upgrade connection
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reads only detect the client closing the connection
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	events := make(chan ports.Event, eventBufferSize)
	if err := h.eventBus.Subscribe(ctx, ports.TopicProgress, h.forward(runID, events)); err != nil {
		h.logger.Error("failed to subscribe to run events",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	// A run that ended before the subscription never emits again
	if run, err := h.runs.GetRun(ctx, runID); err == nil && run.Status.Terminal() {
		final := ports.Event{
			ID:        uuid.New().String(),
			Type:      terminalEvent(run.Status),
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Data:      map[string]interface{}{"summary": run.Summary()},
		}
		select {
		case events <- final:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					h.logger.Warn("failed to write message", zap.String("run_id", runID), zap.Error(err))
				}
				return
			}

			if finished(event.Type) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Type)),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

// forward returns an event handler passing this run's events to ch
func (h *Handler) forward(runID string, ch chan<- ports.Event) ports.EventHandler {
	return func(ctx context.Context, event ports.Event) error {
		if event.RunID != runID {
			return nil
		}

		// Final events close the stream and are never dropped
		if finished(event.Type) {
			select {
			case ch <- event:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Progress events are dropped when the client falls behind
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("run_id", runID),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}

func terminalEvent(status domain.RunStatus) ports.EventType {
	switch status {
	case domain.RunStatusFailed:
		return ports.EventTypeRunFailed
	case domain.RunStatusCancelled:
		return ports.EventTypeRunCancelled
	}
	return ports.EventTypeRunCompleted
}

func finished(t ports.EventType) bool {
	switch t {
	case ports.EventTypeRunCompleted, ports.EventTypeRunFailed, ports.EventTypeRunCancelled:
		return true
	}
	return false
}
