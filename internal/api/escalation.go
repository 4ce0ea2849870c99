package api

import (
	"errors"
	"net/http"

	"omnichannel-gateway/internal/escalation"
	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

type EscalationHandler struct {
	store  *store.Store
	engine *escalation.Engine
}

func NewEscalationHandler(st *store.Store, engine *escalation.Engine) *EscalationHandler {
	return &EscalationHandler{store: st, engine: engine}
}

func (h *EscalationHandler) ListRules(c *gin.Context) {
	rules, err := h.store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *EscalationHandler) GetRule(c *gin.Context) {
	rule, err := h.store.GetRule(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *EscalationHandler) SaveRule(c *gin.Context) {
	var rule models.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.ID == "" || rule.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule id and name are required"})
		return
	}
	if err := escalation.ValidateRule(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveRule(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *EscalationHandler) ToggleRule(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.store.SetRuleEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func (h *EscalationHandler) DeleteRule(c *gin.Context) {
	err := h.store.DeleteRule(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RunCheck triggers one evaluation pass on demand, outside the periodic
// scheduler.
func (h *EscalationHandler) RunCheck(c *gin.Context) {
	stats, err := h.engine.RunEscalationCheck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
