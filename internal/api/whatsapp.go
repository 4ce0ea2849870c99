package api

import (
	"net/http"

	"omnichannel-gateway/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

type WhatsAppHandler struct {
	adapter *whatsapp.Client
}

func NewWhatsAppHandler(adapter *whatsapp.Client) *WhatsAppHandler {
	return &WhatsAppHandler{adapter: adapter}
}

type sendRequest struct {
	To      string `json:"to" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (h *WhatsAppHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.adapter.SendMessage(c.Request.Context(), req.To, req.Message) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"sent": false, "state": h.adapter.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type templateRequest struct {
	To       string   `json:"to" binding:"required"`
	Template string   `json:"template" binding:"required"`
	Params   []string `json:"params"`
}

func (h *WhatsAppHandler) SendTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.adapter.SendTemplate(c.Request.Context(), req.To, req.Template, req.Params) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"sent": false, "state": h.adapter.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// GetQR returns the current pairing challenge as a base64 PNG. Only
// meaningful while the session is waiting to be linked.
func (h *WhatsAppHandler) GetQR(c *gin.Context) {
	qr := h.adapter.PairingChallenge()
	if qr == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing challenge available", "state": h.adapter.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": qr, "state": h.adapter.State()})
}

// Initialize re-runs the session bring-up, e.g. after the operator has
// relinked the device.
func (h *WhatsAppHandler) Initialize(c *gin.Context) {
	result := h.adapter.Initialize(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"paired":  result.Paired,
		"ready":   result.Ready,
		"qr":      result.PairingQR,
		"failure": result.FailureReason,
		"state":   h.adapter.State(),
	})
}

func (h *WhatsAppHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.adapter.State()})
}
