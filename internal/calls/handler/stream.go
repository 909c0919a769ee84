package handler

import (
	"net/http"
	"time"

	"outreach-server/internal/apierrors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Add proper origin validation for production
		return true
	},
}

const streamPollInterval = 500 * time.Millisecond

// transcriptEvent is one message pushed on the transcript stream.
type transcriptEvent struct {
	Type      string    `json:"type"` // "turn" or "status"
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// HandleTranscriptStream upgrades to a websocket and pushes transcript turns
// as they are appended, polling registry snapshots and diffing against what
// was already sent. The stream closes once the session is terminal and fully
// flushed.
func (h *Handler) HandleTranscriptStream(c *gin.Context) {
	ctx := c.Request.Context()

	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}
	if _, err := h.callProcessor.GetStatus(ctx, sessionID); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()
	h.logger.Info(ctx, "Transcript stream connected")

	sent := 0
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			turns, status, err := h.callProcessor.Transcript(ctx, sessionID)
			if err != nil {
				// Session was swept; the terminal status already went out.
				return
			}

			for ; sent < len(turns); sent++ {
				turn := turns[sent]
				event := transcriptEvent{
					Type:      "turn",
					Role:      string(turn.Role),
					Text:      turn.Text,
					Timestamp: turn.Timestamp,
				}
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			}

			if status.IsTerminal() {
				if err := conn.WriteJSON(transcriptEvent{Type: "status", Status: string(status)}); err != nil {
					return
				}
				h.logger.Info(ctx, "Transcript stream complete")
				return
			}
		}
	}
}
