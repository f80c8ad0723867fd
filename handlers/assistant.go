package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slotline/models"
	"slotline/services"
	"slotline/services/booking"
	"slotline/utils"
)

// AssistantHandler exposes the scheduling assistant over HTTP.
type AssistantHandler struct {
	Service services.AssistantService
	Logger  *zap.Logger
}

// NewAssistantHandler returns a handler bound to the given service.
func NewAssistantHandler(svc services.AssistantService, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{Service: svc, Logger: logger}
}

// HandleTurn ingests one user message and returns the assistant's reply.
func (h *AssistantHandler) HandleTurn(c *gin.Context) {
	var req models.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	reply, err := h.Service.IngestTurn(c.Request.Context(), req)
	if err != nil {
		h.Logger.Error("turn ingestion failed",
			zap.String("sessionId", req.SessionID), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "failed to process turn", err.Error())
		return
	}
	c.JSON(http.StatusOK, reply)
}

// GetSession returns the stored session snapshot.
func (h *AssistantHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	session, err := h.Service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, booking.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "failed to fetch session", err.Error())
		return
	}
	c.JSON(http.StatusOK, session)
}

// CancelSession abandons a conversation, removing the booked event when one
// was already written.
func (h *AssistantHandler) CancelSession(c *gin.Context) {
	sessionID := c.Param("id")
	reply, err := h.Service.CancelSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, booking.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "failed to cancel session", err.Error())
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ListUpcoming returns the next events on the calendar.
func (h *AssistantHandler) ListUpcoming(c *gin.Context) {
	calendarID := c.Query("calendar_id")
	max := 0
	if raw := c.Query("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max", "details": err.Error()})
			return
		}
		max = parsed
	}

	events, err := h.Service.ListUpcoming(c.Request.Context(), calendarID, max)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to list upcoming events", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ListHistory returns a user's confirmed bookings from the journal.
func (h *AssistantHandler) ListHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "details": err.Error()})
			return
		}
		limit = parsed
	}

	records, err := h.Service.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to list booking history", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
