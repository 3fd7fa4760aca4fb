package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/ledger"
	"payment-service/internal/models"
	"payment-service/internal/service"
	"payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	orchestrator *service.Orchestrator
	reconciler   *service.Reconciler
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator *service.Orchestrator, reconciler *service.Reconciler) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		reconciler:   reconciler,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:order_id/payments", h.listPayments)
		v1.POST("/orders/:order_id/payments/additional", h.createAdditionalPayment)
		v1.POST("/orders/:order_id/payments/additional/capture", h.captureAdditionalPayment)
		v1.POST("/orders/:order_id/payments/refund", h.createRefund)
		v1.POST("/orders/:order_id/payments/store-credit", h.addStoreCredit)
		v1.POST("/orders/:order_id/payments/adjust-total", h.adjustTotal)
		v1.POST("/orders/:order_id/payments/payment-link", h.createPaymentLink)

		v1.POST("/webhooks/payments/:tenant_id", h.handleWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listPayments returns the order's ledger with recomputed totals. Orders
// still carrying a client-side temporary id have no ledger yet; they get an
// empty one instead of a 404.
func (h *Handler) listPayments(c *gin.Context) {
	idStr := c.Param("order_id")
	if strings.HasPrefix(idStr, "temp-") {
		c.JSON(http.StatusOK, service.LedgerView{
			Payments: []models.Payment{},
			Totals: ledger.Totals{
				TotalPaid:     decimal.Zero,
				TotalRefunded: decimal.Zero,
				NetAmount:     decimal.Zero,
			},
		})
		return
	}

	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	view, err := h.orchestrator.Payments(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type itemsRequest struct {
	Items []models.OrderItem `json:"items" binding:"required"`
}

// createAdditionalPayment opens a payment for newly requested items
func (h *Handler) createAdditionalPayment(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req itemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.CreateAdditionalPayment(c.Request.Context(), orderID, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type captureRequest struct {
	PaymentID int64              `json:"payment_id" binding:"required"`
	Items     []models.OrderItem `json:"items"`
}

// captureAdditionalPayment finalizes a pending additional payment
func (h *Handler) captureAdditionalPayment(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.CaptureAdditionalPayment(c.Request.Context(), orderID, req.PaymentID, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundRequest struct {
	Amount        decimal.Decimal    `json:"amount"`
	Reason        string             `json:"reason"`
	RefundedItems []models.OrderItem `json:"refunded_items"`
}

// createRefund refunds part or all of the order's net amount
func (h *Handler) createRefund(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.CreateRefund(c.Request.Context(), orderID, req.Amount, req.Reason, req.RefundedItems)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type storeCreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// addStoreCredit issues store credit in place of a gateway refund
func (h *Handler) addStoreCredit(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req storeCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.AddStoreCredit(c.Request.Context(), orderID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type adjustTotalRequest struct {
	NewTotal decimal.Decimal `json:"new_total"`
}

// adjustTotal sets a new order total and books the difference
func (h *Handler) adjustTotal(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req adjustTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.AdjustTotal(c.Request.Context(), orderID, req.NewTotal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type paymentLinkRequest struct {
	Items []models.OrderItem `json:"items"`
	Email string             `json:"email"`
	Phone string             `json:"phone"`
}

// createPaymentLink creates a hosted payment page and sends it to the
// customer. All fields are optional; contacts fall back to the order's and
// an absent items payload charges the outstanding balance.
func (h *Handler) createPaymentLink(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req paymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.orchestrator.CreatePaymentLink(c.Request.Context(), orderID, req.Items, req.Email, req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// handleWebhook feeds a raw gateway event through the reconciler. The body
// must stay untouched bytes for signature verification.
func (h *Handler) handleWebhook(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Param("tenant_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable payload"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Webhook-Signature")
	}

	if err := h.reconciler.HandleEvent(c.Request.Context(), tenantID, payload, signature); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) orderID(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": apperr.PublicMessage(err)}
	if ae, ok := apperr.As(err); ok && ae.Code != "" {
		body["code"] = ae.Code
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
