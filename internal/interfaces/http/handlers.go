package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/approval"
	"github.com/pocketpal/approvalflow/internal/models"
)

// ApprovalService is the application surface the HTTP layer depends on
type ApprovalService interface {
	CreateRequest(ctx context.Context, in approval.CreateRequestInput) (*models.PaymentRequest, error)
	Approve(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error)
	Reject(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error)
	GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error)
}

// NotificationReader exposes a user's notification feed
type NotificationReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	service       ApprovalService
	notifications NotificationReader
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service ApprovalService, notifications NotificationReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		service:       service,
		notifications: notifications,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateRequestBody is the payload for POST /api/v1/requests.
// The caller identity comes from the X-User-ID header set by the identity
// gateway in front of this service.
type CreateRequestBody struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Category    string          `json:"category"`
	ImageRef    string          `json:"image_ref"`
	ApproverIDs []string        `json:"approver_ids" binding:"required"`
}

// DecisionBody is the payload for approve/reject calls
type DecisionBody struct {
	Notes string `json:"notes"`
}

// userID extracts the authenticated caller set by the identity gateway
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":  "healthy",
			"service": "approvalflow",
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateRequest handles POST /api/v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	sender := userID(c)
	if sender == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing caller identity"})
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.service.CreateRequest(c.Request.Context(), approval.CreateRequestInput{
		SenderID:    sender,
		Amount:      body.Amount,
		Description: body.Description,
		Category:    body.Category,
		ImageRef:    body.ImageRef,
		ApproverIDs: body.ApproverIDs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/v1/requests?filter=mine|to_approve|all
func (h *Handlers) ListRequests(c *gin.Context) {
	filter := models.RequestFilter(c.DefaultQuery("filter", string(models.FilterMine)))

	requests, err := h.service.ListRequests(c.Request.Context(), filter, userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if requests == nil {
		requests = []*models.PaymentRequest{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// ApproveRequest handles POST /api/v1/requests/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	approver := userID(c)
	if approver == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing caller identity"})
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.service.Approve(c.Request.Context(), c.Param("id"), approver, body.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// RejectRequest handles POST /api/v1/requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	approver := userID(c)
	if approver == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing caller identity"})
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.service.Reject(c.Request.Context(), c.Param("id"), approver, body.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing caller identity"})
		return
	}

	notifications, err := h.notifications.ListByUser(c.Request.Context(), user, 100)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.String("user_id", user), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve notifications"})
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// writeError maps the approval error taxonomy onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, approval.ErrValidation):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, approval.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, approval.ErrUnauthorized), errors.Is(err, approval.ErrUnauthorizedApprover):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})
	case errors.Is(err, approval.ErrAlreadyTerminal), errors.Is(err, approval.ErrAlreadyActed):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request handling failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}
