package handler

import (
	"net/http"

	"outreach-server/internal/apierrors"
	"outreach-server/internal/calls/processor"
	"outreach-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	callProcessor *processor.CallProcessor
	logger        *observability.Logger
}

func New(callProcessor *processor.CallProcessor, logger *observability.Logger) Handler {
	return Handler{
		callProcessor: callProcessor,
		logger:        logger,
	}
}

// HandleStartCall admits a new outbound call session from a raw campaign
// trigger payload.
func (h *Handler) HandleStartCall(c *gin.Context) {
	ctx := c.Request.Context()

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	sess, err := h.callProcessor.StartSession(ctx, payload)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"status":     sess.Status,
	})
}

// HandleGetCall returns the management view of one session.
func (h *Handler) HandleGetCall(c *gin.Context) {
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}

	status, err := h.callProcessor.GetStatus(c.Request.Context(), sessionID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleCancelCall requests cooperative cancellation of a session.
func (h *Handler) HandleCancelCall(c *gin.Context) {
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}

	cancelled, err := h.callProcessor.Cancel(c.Request.Context(), sessionID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *Handler) sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "session id must be a valid UUID"))
		return uuid.UUID{}, false
	}
	return sessionID, true
}
