package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/threadline-ai/agent-chat/internal/middleware"
	"github.com/threadline-ai/agent-chat/internal/model"
	"github.com/threadline-ai/agent-chat/internal/service"
	"github.com/threadline-ai/agent-chat/internal/sse"
	"github.com/threadline-ai/agent-chat/pkg/logger"
	"github.com/threadline-ai/agent-chat/pkg/metrics"
)

// StreamHandler handles the streaming chat endpoint.
type StreamHandler struct {
	turnService *service.TurnService
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(turnSvc *service.TurnService, chatSvc *service.ChatService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		turnService: turnSvc,
		chatService: chatSvc,
		logger:      log,
	}
}

// errStreamClosed reports a send after the stream closed or went terminal.
var errStreamClosed = errors.New("stream closed")

// streamWriter serializes events onto the SSE response. It guarantees at
// most one terminal event and tolerates double close, which it logs.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	log     *logger.Logger

	mu       sync.Mutex
	closed   bool
	terminal bool
}

// send encodes and writes one event, flushing immediately so partial
// output reaches the client. Writing blocks, so the client socket
// backpressures the producer side.
func (sw *streamWriter) send(event model.StreamEvent) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed || sw.terminal {
		return errStreamClosed
	}

	frame, err := sse.Encode(event)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return err
	}
	sw.flusher.Flush()

	if event.Type == model.StreamDone || event.Type == model.StreamError {
		sw.terminal = true
	}
	return nil
}

// close marks the stream finished. Calling it more than once is tolerated
// and logged, never fatal; the HTTP server closes the connection when the
// handler returns.
func (sw *streamWriter) close() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		sw.log.Warn("stream closed twice")
		return
	}
	sw.closed = true
}

// Stream handles POST /api/v1/chat/stream.
//
// The Connected event is written before any persistence or model work so
// the client can confirm the channel is live even when later steps fail.
// Once the stream is open, failures travel in-band as a single Error
// event; the HTTP status is already committed.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateChatID(req.ChatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.NewMessage); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Ownership check while an HTTP error can still be returned.
	if _, err := h.chatService.Get(ctx, userID, req.ChatID); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID)

	sw := &streamWriter{w: w, flusher: flusher, log: log}
	defer sw.close()

	if err := sw.send(model.ConnectedEvent()); err != nil {
		log.Warn("client gone before connected event", zap.Error(err))
		return
	}

	emit := func(event model.StreamEvent) error {
		select {
		case <-ctx.Done():
			// Client disconnected; stop driving the orchestrator.
			return ctx.Err()
		default:
		}
		return sw.send(event)
	}

	if err := h.turnService.Stream(ctx, userID, &req, emit); err != nil {
		log.Error("chat stream failed",
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		if sendErr := sw.send(model.ErrorEvent("Failed to process chat request: " + err.Error())); sendErr != nil {
			log.Warn("error event not delivered", zap.Error(sendErr))
		}
		return
	}

	if err := sw.send(model.DoneEvent()); err != nil {
		log.Warn("done event not delivered", zap.Error(err))
	}
}
