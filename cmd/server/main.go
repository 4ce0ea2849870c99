package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omnichannel-gateway/internal/api"
	"omnichannel-gateway/internal/bootstrap"
	"omnichannel-gateway/internal/config"
	"omnichannel-gateway/internal/database"
	"omnichannel-gateway/internal/escalation"
	"omnichannel-gateway/internal/logging"
	"omnichannel-gateway/internal/processor"
	"omnichannel-gateway/internal/store"
	"omnichannel-gateway/internal/webhook"
	"omnichannel-gateway/internal/whatsapp"
	"omnichannel-gateway/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	st := store.New(db)
	notifier := webhook.NewNotifier(cfg.AutomationWebhookURL, cfg.WebhookTimeout, logger)
	responder := whatsapp.NewResponder(cfg.BusinessHoursStart, cfg.BusinessHoursEnd)

	// The session transport is pluggable; without linked device credentials
	// the adapter runs degraded and the rest of the system stays up.
	session := whatsapp.NewUnconfiguredSession()
	adapter := whatsapp.NewClient(session, st, notifier, responder, whatsapp.Options{
		DefaultCountryCode: cfg.DefaultCountryCode,
		PairingTimeout:     cfg.PairingTimeout,
		ReconnectDelay:     cfg.ReconnectDelay,
	}, logger)

	hub := ws.NewHub(logger)
	go hub.Run()

	proc := processor.New(st, logger,
		processor.WithAutoResponder(adapter),
		processor.WithBroadcaster(hub),
	)
	adapter.SetIngestor(proc)
	proc.Start(cfg.ProcessorWorkers)

	engine := escalation.NewEngine(st, notifier, logger, escalation.WithBroadcaster(hub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boot := bootstrap.New(db, st, notifier, adapter, logger)
	healthHandler := api.NewHealthHandler(boot)

	status := boot.InitializeComplete(ctx)
	healthHandler.SetStatus(status)
	if !status.OverallReady {
		logger.Fatal("Store initialization failed, cannot serve traffic",
			zap.Strings("issues", status.Issues))
	}
	for _, issue := range status.Issues {
		logger.Warn("Starting degraded", zap.String("issue", issue))
	}

	go runEscalationTicker(ctx, engine, cfg.EscalationInterval, logger)

	dispatcher := whatsapp.NewFollowUpDispatcher(st, adapter, logger)
	go runFollowUpTicker(ctx, dispatcher, cfg.FollowUpInterval, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	convHandler := api.NewConversationHandler(st, adapter)
	waHandler := api.NewWhatsAppHandler(adapter)
	escHandler := api.NewEscalationHandler(st, engine)
	adminHandler := api.NewAdminHandler(st)

	r.GET("/health", healthHandler.GetHealth)
	r.GET("/ready", healthHandler.GetReadiness)
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/conversations", convHandler.ListActive)
		apiGroup.GET("/conversations/:id", convHandler.GetDetails)
		apiGroup.PUT("/conversations/:id/status", convHandler.UpdateStatus)
		apiGroup.POST("/conversations/:id/messages", convHandler.Reply)
		apiGroup.GET("/conversations/:id/escalations", convHandler.ListEscalations)
		apiGroup.GET("/conversations/:id/activity", convHandler.ListActivity)

		apiGroup.GET("/whatsapp/status", waHandler.Status)
		apiGroup.GET("/whatsapp/qr", waHandler.GetQR)
		apiGroup.POST("/whatsapp/initialize", waHandler.Initialize)
		apiGroup.POST("/whatsapp/send", waHandler.Send)
		apiGroup.POST("/whatsapp/template", waHandler.SendTemplate)

		apiGroup.GET("/escalation/rules", escHandler.ListRules)
		apiGroup.GET("/escalation/rules/:id", escHandler.GetRule)
		apiGroup.POST("/escalation/rules", escHandler.SaveRule)
		apiGroup.PUT("/escalation/rules/:id/toggle", escHandler.ToggleRule)
		apiGroup.DELETE("/escalation/rules/:id", escHandler.DeleteRule)
		apiGroup.POST("/escalation/check", escHandler.RunCheck)
		apiGroup.PUT("/escalations/:id/status", adminHandler.UpdateEscalationStatus)

		apiGroup.POST("/agents", adminHandler.CreateAgent)
		apiGroup.GET("/agents/:id", adminHandler.GetAgent)
		apiGroup.PUT("/agents/:id/status", adminHandler.UpdateAgentStatus)
		apiGroup.GET("/customers/:id", adminHandler.GetCustomer)
		apiGroup.POST("/templates", adminHandler.SaveTemplate)
		apiGroup.POST("/followups", adminHandler.ScheduleFollowUp)
		apiGroup.POST("/messages/:id/read", adminHandler.MarkMessageRead)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("session_dir", cfg.SessionDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	cancel()
	shutdownCtx, release := context.WithTimeout(context.Background(), 10*time.Second)
	defer release()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	proc.Shutdown()
	if err := adapter.Disconnect(); err != nil {
		logger.Error("Adapter disconnect", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// runEscalationTicker drives the rule engine at a fixed cadence. The engine
// itself owns no timer.
func runEscalationTicker(ctx context.Context, engine *escalation.Engine, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.RunEscalationCheck(ctx); err != nil {
				logger.Error("Escalation check failed", zap.Error(err))
			}
		}
	}
}

func runFollowUpTicker(ctx context.Context, dispatcher *whatsapp.FollowUpDispatcher, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := dispatcher.DispatchDue(ctx); err != nil {
				logger.Error("Follow-up dispatch failed", zap.Error(err))
			}
		}
	}
}
