package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	_ "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/docs"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	headerTenantID  = "X-Tenant-ID"
	headerUserID    = "X-User-ID"
	headerSignature = "X-Twilio-Signature"

	ctxTenantID = "tenantID"
	ctxUserID   = "userID"

	emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

type Handler struct {
	dispatcher       service.Dispatcher
	ingestor         service.Ingestor
	logger           *slog.Logger
	webhookPublicURL string
	server           *http.Server
}

type Options struct {
	// WebhookPublicURL is the externally visible webhook URL the gateway
	// signs. When empty it is rebuilt from the incoming request.
	WebhookPublicURL string
}

// @title Unified Inbox Messaging API
// @version 1.0
// @description Outbound dispatch, delivery tracking and inbound webhooks for SMS and WhatsApp
// @host localhost:8080
// @BasePath /
func NewHttpHandler(addr string, dispatcher service.Dispatcher, ingestor service.Ingestor, logger *slog.Logger, opts Options) *Handler {
	h := &Handler{
		dispatcher:       dispatcher,
		ingestor:         ingestor,
		logger:           logger,
		webhookPublicURL: opts.WebhookPublicURL,
	}

	// create router
	router := gin.Default()

	// register routes
	router.GET("/health", h.health)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	messages := api.Group("/messages", requireIdentity)
	messages.POST("", h.sendMessage)
	messages.GET("", h.listMessages)
	messages.GET("/:id", h.getMessage)

	api.POST("/webhooks/twilio", h.receiveWebhook)
	api.GET("/webhooks/twilio", h.webhookStatus)

	// create http server
	h.server = &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	return h
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type sendMessageRequest struct {
	ContactID string `json:"contactId" binding:"required"`
	Content   string `json:"content" binding:"required"`
	Channel   string `json:"channel" example:"SMS" enums:"SMS,WHATSAPP"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// requireIdentity rejects requests that do not carry the caller's tenant and user.
func requireIdentity(c *gin.Context) {
	tenantID := c.GetHeader(headerTenantID)
	userID := c.GetHeader(headerUserID)
	if tenantID == "" || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing tenant or user identity"})
		return
	}
	c.Set(ctxTenantID, tenantID)
	c.Set(ctxUserID, userID)
	c.Next()
}

// Health godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SendMessage godoc
// @Summary Send a message to a contact
// @Description Records an outbound message and hands it to the gateway. The returned status is SENT or FAILED.
// @Tags Messages
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-User-ID header string true "Sending user id"
// @Param request body sendMessageRequest true "Message"
// @Success 201 {object} domain.Message
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /api/messages [post]
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	channel, ok := domain.ParseChannel(req.Channel)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unsupported channel: " + req.Channel})
		return
	}

	msg, err := h.dispatcher.SendMessage(c.Request.Context(), service.SendCommand{
		TenantID:     c.GetString(ctxTenantID),
		ContactID:    req.ContactID,
		SenderUserID: c.GetString(ctxUserID),
		Channel:      channel,
		Content:      req.Content,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListMessages godoc
// @Summary List a contact's conversation
// @Description Returns every message exchanged with the contact, oldest first
// @Tags Messages
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-User-ID header string true "User id"
// @Param contactId query string true "Contact id"
// @Success 200 {array} domain.Message
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/messages [get]
func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.dispatcher.ListThread(c.Request.Context(), c.GetString(ctxTenantID), c.Query("contactId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// GetMessage godoc
// @Summary Get a message
// @Description Re-reads a message to follow its delivery status
// @Tags Messages
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-User-ID header string true "User id"
// @Param id path string true "Message id"
// @Success 200 {object} domain.Message
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/messages/{id} [get]
func (h *Handler) getMessage(c *gin.Context) {
	msg, err := h.dispatcher.GetMessage(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ReceiveWebhook godoc
// @Summary Gateway callback for inbound messages
// @Description Always answers with an empty TwiML document so the gateway does not retry.
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Produce xml
// @Param From formData string true "Sender address"
// @Param To formData string true "Recipient address"
// @Param Body formData string false "Message text"
// @Param MessageSid formData string false "Gateway message id"
// @Param NumMedia formData int false "Number of attachments"
// @Success 200 {string} string
// @Router /api/webhooks/twilio [post]
func (h *Handler) receiveWebhook(c *gin.Context) {
	defer c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))

	if err := c.Request.ParseForm(); err != nil {
		h.logger.Warn("failed to parse webhook form", "error", err.Error())
		return
	}

	ev := service.NewInboundEvent(c.Request.PostForm)
	ev.Signature = c.GetHeader(headerSignature)
	ev.URL = h.webhookURL(c)

	msg, err := h.ingestor.Ingest(c.Request.Context(), ev)
	switch {
	case err == nil:
		h.logger.Debug("webhook processed", "messageId", msg.ID)
	case errors.Is(err, domain.ErrUnroutableInbound), errors.Is(err, domain.ErrInvalidSignature):
		h.logger.Warn("webhook rejected", "from", ev.From, "to", ev.To, "error", err.Error())
	default:
		h.logger.Error("failed to process webhook", "from", ev.From, "to", ev.To, "error", err.Error())
	}
}

// WebhookStatus godoc
// @Summary Webhook reachability check
// @Tags Webhooks
// @Produce json
// @Success 200 {object} statusResponse
// @Router /api/webhooks/twilio [get]
func (h *Handler) webhookStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: "ok", Message: "Twilio webhook endpoint is reachable"})
}

func (h *Handler) webhookURL(c *gin.Context) string {
	if h.webhookPublicURL != "" {
		return h.webhookPublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrContactNotFound), errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
