package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinResolve/internal/domain/models"
	xhttp "FinResolve/pkg/http"
	xlogger "FinResolve/pkg/logger"
)

type streamConfig struct {
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
}

func defaultStreamConfig() streamConfig {
	return streamConfig{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		readTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
		pingInterval: 20 * time.Second,
	}
}

// Frame types sent on the progress stream.
const (
	FrameProgress = "progress"
	FrameResult   = "result"
	FrameError    = "error"
)

// StreamFrame is one message of the bulk progress stream.
type StreamFrame struct {
	Type     string               `json:"type"`
	Progress *models.BulkProgress `json:"progress,omitempty"`
	Result   *models.BulkResult   `json:"result,omitempty"`
	Error    any                  `json:"error,omitempty"`
}

// wsWriter serializes writes; gorilla connections allow one writer.
type wsWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *wsWriter) frame(f StreamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteJSON(f)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.timeout))
}

// Stream upgrades to a websocket, reads one bulk request and streams a
// progress frame per completed item followed by the result frame. Closing
// the socket cancels the run.
func (h *ResolveEchoHandler) Stream(c echo.Context) error {
	conn, err := h.stream.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	w := &wsWriter{conn: conn, timeout: h.stream.writeTimeout}

	_ = conn.SetReadDeadline(time.Now().Add(h.stream.readTimeout))
	req := &models.BulkResolveRequest{}
	if err := conn.ReadJSON(req); err != nil {
		_ = w.frame(StreamFrame{Type: FrameError, Error: "expected a bulk request: " + err.Error()})
		return nil
	}
	if verr := xhttp.ValidateRequest(c.Request().Context(), req); verr != nil {
		_ = w.frame(StreamFrame{Type: FrameError, Error: verr})
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// The reader only watches for the client going away.
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	go func() {
		t := time.NewTicker(h.stream.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	res, err := h.resolver.ResolveBulk(ctx, bulkQueries(req), req.Options.ApplyTo(h.resolver.Defaults()), func(p models.BulkProgress) {
		if err := w.frame(StreamFrame{Type: FrameProgress, Progress: &p}); err != nil {
			cancel()
		}
	})
	if err != nil {
		h.logger.Error("streamed bulk resolve failed", xlogger.Error(err))
		_ = w.frame(StreamFrame{Type: FrameError, Error: toAppError(err)})
		return nil
	}

	if err := w.frame(StreamFrame{Type: FrameResult, Result: res}); err != nil {
		h.logger.Warn("websocket write failed", xlogger.String("run_id", res.Performance.RunID), xlogger.Error(err))
		return nil
	}
	w.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(h.stream.writeTimeout))
	w.mu.Unlock()
	return nil
}
