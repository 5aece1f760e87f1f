package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/orders"
	"github.com/rayonware/picksync/internal/session"
	"github.com/rayonware/picksync/internal/syncengine"
)

var (
	errMissingSessions = errors.New("session manager dependency required")
	errMissingClient   = errors.New("remote client dependency required")
	errMissingOrders   = errors.New("order store dependency required")
	errMissingEngine   = errors.New("sync engine dependency required")
	errMissingMonitor  = errors.New("connectivity monitor dependency required")
)

// Dependencies wires the agent's localhost API to its services.
type Dependencies struct {
	Sessions      *session.Manager
	Client        *api.Client
	Orders        *orders.Service
	Engine        *syncengine.Engine
	Monitor       *connectivity.Monitor
	Logger        *zap.Logger
	AllowedOrigin string
}

// NewHTTPHandler builds the localhost API the picking UI consumes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Client == nil {
		return nil, errMissingClient
	}
	if deps.Orders == nil {
		return nil, errMissingOrders
	}
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Monitor == nil {
		return nil, errMissingMonitor
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowedOrigin := deps.AllowedOrigin
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{allowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.Sessions,
		client:   deps.Client,
		orders:   deps.Orders,
		engine:   deps.Engine,
		monitor:  deps.Monitor,
		logger:   logger,
	}

	router.GET("/status", handler.handleStatus)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.PUT("/connectivity", handler.handleConnectivity)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/auth/profile", handler.handleProfile)
	protected.GET("/orders", handler.handleListOrders)
	protected.GET("/orders/:id", handler.handleOrderDetail)
	protected.POST("/orders/:id/start", handler.handleStartOrder)
	protected.PUT("/orders/:id/items/:itemID/picked", handler.handleMarkPicked)
	protected.PUT("/orders/:id/items/:itemID/missing", handler.handleMarkMissing)
	protected.POST("/orders/:id/complete", handler.handleCompleteOrder)
	protected.POST("/qr-mappings", handler.handleCreateMapping)
	protected.GET("/qr-mappings/:code", handler.handleResolveCode)
	protected.POST("/sync/refresh", handler.handleRefresh)
	protected.POST("/sync/drain", handler.handleDrain)

	return router, nil
}

type httpHandler struct {
	sessions *session.Manager
	client   *api.Client
	orders   *orders.Service
	engine   *syncengine.Engine
	monitor  *connectivity.Monitor
	logger   *zap.Logger
}

func (h *httpHandler) requireSession(c *gin.Context) {
	if !h.sessions.Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_logged_in"})
		return
	}
	c.Next()
}

type statusSyncPayload struct {
	State       string `json:"state"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	AuthExpired bool   `json:"authExpired"`
	At          int64  `json:"at"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	pending, err := h.engine.PendingCount(c.Request.Context())
	if err != nil {
		h.logger.Error("pending count read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}

	payload := gin.H{
		"online":        h.monitor.IsOnline(),
		"authenticated": h.sessions.Authenticated(),
		"pending":       pending,
		"failures":      h.engine.FailureCount(),
	}
	if last := h.engine.LastEvent(); last != nil {
		payload["lastSync"] = statusSyncPayload{
			State:       string(last.State),
			Succeeded:   last.Succeeded,
			Failed:      last.Failed,
			AuthExpired: last.AuthExpired,
			At:          last.At.Unix(),
		}
	}
	c.JSON(http.StatusOK, payload)
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.client.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if api.IsAuthFailure(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Warn("login request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "remote_unreachable"})
		return
	}

	if err := h.sessions.Establish(c.Request.Context(), result); err != nil {
		h.logger.Error("session persist failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}

	profile := h.sessions.Profile()
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":    profile.UserID,
			"email": profile.Email,
			"name":  profile.DisplayName,
			"role":  profile.Role,
		},
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.sessions.Clear(c.Request.Context()); err != nil {
		h.logger.Error("logout reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	profile := h.sessions.Profile()
	c.JSON(http.StatusOK, gin.H{
		"id":    profile.UserID,
		"email": profile.Email,
		"name":  profile.DisplayName,
		"role":  profile.Role,
	})
}

type connectivityPayload struct {
	Online *bool `json:"online"`
}

func (h *httpHandler) handleConnectivity(c *gin.Context) {
	var request connectivityPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Online == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.monitor.SetOnline(*request.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.monitor.IsOnline()})
}

func (h *httpHandler) handleListOrders(c *gin.Context) {
	list, err := h.orders.List(c.Request.Context())
	if err != nil {
		h.logger.Error("order list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *httpHandler) handleOrderDetail(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("order detail failed", zap.Int64("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": detail.Order, "items": detail.Items})
}

func (h *httpHandler) handleStartOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	handle, err := h.orders.StartOrder(c.Request.Context(), orderID)
	h.respondQueued(c, handle, err)
}

type quantityPayload struct {
	PickedQuantity  *int `json:"pickedQuantity"`
	MissingQuantity *int `json:"missingQuantity"`
}

func (h *httpHandler) handleMarkPicked(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(c, "itemID")
	if !ok {
		return
	}
	var request quantityPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.PickedQuantity == nil || *request.PickedQuantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
		return
	}
	handle, err := h.orders.MarkItemPicked(c.Request.Context(), orderID, itemID, *request.PickedQuantity)
	h.respondQueued(c, handle, err)
}

func (h *httpHandler) handleMarkMissing(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(c, "itemID")
	if !ok {
		return
	}
	var request quantityPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.MissingQuantity == nil || *request.MissingQuantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
		return
	}
	handle, err := h.orders.MarkItemMissing(c.Request.Context(), orderID, itemID, *request.MissingQuantity)
	h.respondQueued(c, handle, err)
}

func (h *httpHandler) handleCompleteOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	handle, err := h.orders.CompleteOrder(c.Request.Context(), orderID)
	h.respondQueued(c, handle, err)
}

type mappingPayload struct {
	QRCode string `json:"qrCode"`
	SKU    string `json:"sku"`
}

func (h *httpHandler) handleCreateMapping(c *gin.Context) {
	var request mappingPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.QRCode) == "" || strings.TrimSpace(request.SKU) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	handle, err := h.orders.CreateCodeMapping(c.Request.Context(), request.QRCode, request.SKU)
	h.respondQueued(c, handle, err)
}

func (h *httpHandler) handleResolveCode(c *gin.Context) {
	code := c.Param("code")
	sku, found, err := h.orders.ResolveCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("code resolve failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "code_unknown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"qrCode": code, "sku": sku})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	stats, err := h.orders.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Warn("refresh failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *httpHandler) handleDrain(c *gin.Context) {
	outcome := h.engine.Drain(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"skipped":     outcome.Skipped,
		"attempted":   outcome.Attempted,
		"succeeded":   outcome.Succeeded,
		"failed":      outcome.Failed,
		"authAborted": outcome.AuthAborted,
	})
}

// respondQueued reports enqueue-time failures immediately; everything queued
// is a 202, with delivery feedback arriving via /status.
func (h *httpHandler) respondQueued(c *gin.Context, handle int64, err error) {
	if err != nil {
		h.logger.Error("mutation enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queuedMutationId": handle})
}

func (h *httpHandler) pathID(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_identifier"})
		return 0, false
	}
	return value, true
}
