package api

import (
	"errors"
	"net/http"
	"strconv"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"
	"omnichannel-gateway/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the agent dashboard's conversation views and
// the outbound reply path.
type ConversationHandler struct {
	store   *store.Store
	adapter *whatsapp.Client
}

func NewConversationHandler(st *store.Store, adapter *whatsapp.Client) *ConversationHandler {
	return &ConversationHandler{store: st, adapter: adapter}
}

func (h *ConversationHandler) ListActive(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var agentID *string
	if id := c.Query("agent_id"); id != "" {
		agentID = &id
	}

	summaries, err := h.store.ListActiveConversations(c.Request.Context(), agentID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

func (h *ConversationHandler) GetDetails(c *gin.Context) {
	detail, err := h.store.GetConversationWithDetails(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

type statusRequest struct {
	Status  models.ConversationStatus `json:"status" binding:"required"`
	AgentID *string                   `json:"agent_id"`
}

func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Status {
	case models.StatusOpen, models.StatusPending, models.StatusResolved, models.StatusClosed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	err := h.store.UpdateConversationStatus(c.Request.Context(), c.Param("id"), req.Status, req.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

type replyRequest struct {
	Content string  `json:"content" binding:"required"`
	AgentID *string `json:"agent_id"`
}

// Reply appends an outbound agent message and dispatches it through the
// channel adapter when the conversation lives on WhatsApp.
func (h *ConversationHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.store.GetConversation(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Channel:        conv.Channel,
		Direction:      models.DirectionOutbound,
		Content:        req.Content,
		AgentID:        req.AgentID,
	}
	if err := h.store.AppendMessage(ctx, msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	delivered := false
	if conv.Channel == models.ChannelWhatsApp {
		delivered = h.adapter.SendMessage(ctx, conv.ChannelThreadID, req.Content)
	}
	if delivered {
		if err := h.store.MarkMessageDelivered(ctx, msg.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": msg, "delivered": delivered})
}

func (h *ConversationHandler) ListEscalations(c *gin.Context) {
	events, err := h.store.ListEscalationEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *ConversationHandler) ListActivity(c *gin.Context) {
	entries, err := h.store.ListActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
