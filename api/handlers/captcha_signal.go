package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"net/http"
)

// CaptchaSignaler is the subset of captcha.Signaler this handler drives.
// Satisfied by *captcha.Signaler.
type CaptchaSignaler interface {
	NotifySolved(pairID int)
}

// captchaSignalMessage is the inbound frame an operator UI sends once it has
// solved a pair's CAPTCHA.
type captchaSignalMessage struct {
	PairID int `json:"pair_id"`
}

// CaptchaSignalHandler accepts a WebSocket connection from a human-operator
// UI and forwards "solved" notifications into a captcha.Signaler, grounded
// on agent/streaming/ws_adapter.go's connection handling, narrowed from a
// bidirectional chat stream to a one-way signal channel.
type CaptchaSignalHandler struct {
	signaler CaptchaSignaler
	logger   *zap.Logger
}

// NewCaptchaSignalHandler creates a CaptchaSignalHandler.
func NewCaptchaSignalHandler(signaler CaptchaSignaler, logger *zap.Logger) *CaptchaSignalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptchaSignalHandler{signaler: signaler, logger: logger.With(zap.String("component", "captcha_signal"))}
}

// HandleSignal upgrades the request to a WebSocket and reads solved-pair
// notifications until the connection closes or the request context ends.
func (h *CaptchaSignalHandler) HandleSignal(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("captcha signal websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg captchaSignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("discarding malformed captcha signal frame", zap.Error(err))
			continue
		}
		if msg.PairID <= 0 {
			continue
		}

		h.signaler.NotifySolved(msg.PairID)

		ackCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ack, _ := json.Marshal(map[string]any{"status": "ack", "pair_id": msg.PairID})
		_ = conn.Write(ackCtx, websocket.MessageText, ack)
		cancel()
	}
}
