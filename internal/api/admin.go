package api

import (
	"errors"
	"net/http"
	"time"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

// AdminHandler covers the operational endpoints: agents, customers,
// templates, follow-ups and escalation lifecycle.
type AdminHandler struct {
	store *store.Store
}

func NewAdminHandler(st *store.Store) *AdminHandler {
	return &AdminHandler{store: st}
}

func (h *AdminHandler) CreateAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if agent.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent name is required"})
		return
	}
	if err := h.store.CreateAgent(c.Request.Context(), &agent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h *AdminHandler) GetAgent(c *gin.Context) {
	agent, err := h.store.GetAgent(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agent)
}

type agentStatusRequest struct {
	Status models.AgentStatus `json:"status" binding:"required"`
}

func (h *AdminHandler) UpdateAgentStatus(c *gin.Context) {
	var req agentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case models.AgentOnline, models.AgentOffline, models.AgentAway, models.AgentBusy:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent status"})
		return
	}

	err := h.store.UpdateAgentStatus(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *AdminHandler) GetCustomer(c *gin.Context) {
	customer, err := h.store.GetCustomer(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *AdminHandler) SaveTemplate(c *gin.Context) {
	var tmpl models.MessageTemplate
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if tmpl.Name == "" || tmpl.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template name and body are required"})
		return
	}
	if err := h.store.SaveTemplate(c.Request.Context(), &tmpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

type followUpRequest struct {
	CustomerID   string    `json:"customer_id"`
	Phone        string    `json:"phone" binding:"required"`
	Content      string    `json:"content" binding:"required"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

// ScheduleFollowUp enqueues a deferred outbound message; the dispatcher
// picks it up once scheduled_for passes.
func (h *AdminHandler) ScheduleFollowUp(c *gin.Context) {
	var req followUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	followUp := &models.FollowUp{
		CustomerID:   req.CustomerID,
		Phone:        req.Phone,
		Content:      req.Content,
		ScheduledFor: req.ScheduledFor,
	}
	if err := h.store.EnqueueFollowUp(c.Request.Context(), followUp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, followUp)
}

type escalationStatusRequest struct {
	Status models.EscalationStatus `json:"status" binding:"required"`
}

// UpdateEscalationStatus moves an escalation through its lifecycle. Marking
// an event resolved is what re-arms its rule for the conversation.
func (h *AdminHandler) UpdateEscalationStatus(c *gin.Context) {
	var req escalationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case models.EscalationPending, models.EscalationInProgress, models.EscalationResolved, models.EscalationCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escalation status"})
		return
	}

	err := h.store.UpdateEscalationStatus(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "escalation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *AdminHandler) MarkMessageRead(c *gin.Context) {
	if err := h.store.MarkMessageRead(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}
