package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/approval"
	"github.com/pocketpal/approvalflow/internal/models"
)

// stubService answers with canned results so the tests exercise only the
// HTTP layer: decoding, identity extraction, and status mapping.
type stubService struct {
	createFn func(ctx context.Context, in approval.CreateRequestInput) (*models.PaymentRequest, error)
	decideFn func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error)
	getFn    func(ctx context.Context, id string) (*models.PaymentRequest, error)
	listFn   func(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error)
}

func (s *stubService) CreateRequest(ctx context.Context, in approval.CreateRequestInput) (*models.PaymentRequest, error) {
	return s.createFn(ctx, in)
}

func (s *stubService) Approve(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
	return s.decideFn(ctx, requestID, approverID, notes)
}

func (s *stubService) Reject(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
	return s.decideFn(ctx, requestID, approverID, notes)
}

func (s *stubService) GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return s.getFn(ctx, id)
}

func (s *stubService) ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
	return s.listFn(ctx, filter, userID)
}

type stubNotifications struct {
	listFn func(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

func (s *stubNotifications) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	return s.listFn(ctx, userID, limit)
}

func newTestServer(service ApprovalService, notifications NotificationReader) *Server {
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, service, notifications, zap.NewNop())
}

func doRequest(srv *Server, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func sampleRequest() *models.PaymentRequest {
	now := time.Now().UTC()
	return &models.PaymentRequest{
		ID:          "req-1",
		SenderID:    "alice",
		Amount:      decimal.RequireFromString("42.50"),
		Description: "team lunch",
		Approvers: []models.ApproverEntry{
			{ApproverID: "bob", Status: models.ApproverStatusPending},
		},
		Status:    models.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubNotifications{})

	w := doRequest(srv, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
}

func TestCreateRequest(t *testing.T) {
	var captured approval.CreateRequestInput
	service := &stubService{
		createFn: func(ctx context.Context, in approval.CreateRequestInput) (*models.PaymentRequest, error) {
			captured = in
			return sampleRequest(), nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodPost, "/api/v1/requests", "alice", gin.H{
		"amount":       "42.50",
		"description":  "team lunch",
		"approver_ids": []string{"bob"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "alice", captured.SenderID)
	assert.True(t, captured.Amount.Equal(decimal.RequireFromString("42.50")))
	assert.Equal(t, []string{"bob"}, captured.ApproverIDs)
}

func TestCreateRequest_MissingIdentity(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubNotifications{})

	w := doRequest(srv, http.MethodPost, "/api/v1/requests", "", gin.H{
		"amount":       "10",
		"description":  "x",
		"approver_ids": []string{"bob"},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateRequest_MalformedBody(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubNotifications{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-ID", "alice")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorTaxonomyStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: amount must be positive", approval.ErrValidation), http.StatusBadRequest},
		{"not found", approval.ErrNotFound, http.StatusNotFound},
		{"unauthorized caller", approval.ErrUnauthorized, http.StatusForbidden},
		{"unauthorized approver", fmt.Errorf("%w: carol", approval.ErrUnauthorizedApprover), http.StatusForbidden},
		{"already terminal", approval.ErrAlreadyTerminal, http.StatusConflict},
		{"already acted", approval.ErrAlreadyActed, http.StatusConflict},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubService{
				decideFn: func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
					return nil, tt.err
				},
			}
			srv := newTestServer(service, &stubNotifications{})

			w := doRequest(srv, http.MethodPost, "/api/v1/requests/req-1/approve", "bob", gin.H{})

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestApproveRequest(t *testing.T) {
	approved := sampleRequest()
	approved.Status = models.RequestStatusApproved
	approved.FundingResult = "txn-123"

	var gotID, gotApprover, gotNotes string
	service := &stubService{
		decideFn: func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
			gotID, gotApprover, gotNotes = requestID, approverID, notes
			return approved, nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodPost, "/api/v1/requests/req-1/approve", "bob", gin.H{"notes": "lgtm"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", gotID)
	assert.Equal(t, "bob", gotApprover)
	assert.Equal(t, "lgtm", gotNotes)
}

func TestApproveRequest_EmptyBodyAllowed(t *testing.T) {
	service := &stubService{
		decideFn: func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
			return sampleRequest(), nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/req-1/approve", nil)
	req.Header.Set("X-User-ID", "bob")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApproveRequest_FundingFailureStillOK(t *testing.T) {
	// An approved request whose funding call failed is still approved;
	// the handler returns it with 200 and the recorded funding error.
	approved := sampleRequest()
	approved.Status = models.RequestStatusApproved
	approved.FundingError = "provider unavailable"

	service := &stubService{
		decideFn: func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
			return approved, nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodPost, "/api/v1/requests/req-1/approve", "bob", gin.H{})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got models.PaymentRequest
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, models.RequestStatusApproved, got.Status)
	assert.Equal(t, "provider unavailable", got.FundingError)
}

func TestRejectRequest(t *testing.T) {
	rejected := sampleRequest()
	rejected.Status = models.RequestStatusRejected

	service := &stubService{
		decideFn: func(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
			return rejected, nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodPost, "/api/v1/requests/req-1/reject", "bob", gin.H{"notes": "over budget"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRequest(t *testing.T) {
	service := &stubService{
		getFn: func(ctx context.Context, id string) (*models.PaymentRequest, error) {
			if id != "req-1" {
				return nil, approval.ErrNotFound
			}
			return sampleRequest(), nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodGet, "/api/v1/requests/req-1", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/v1/requests/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRequests(t *testing.T) {
	var gotFilter models.RequestFilter
	var gotUser string
	service := &stubService{
		listFn: func(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
			gotFilter, gotUser = filter, userID
			return nil, nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodGet, "/api/v1/requests?filter=to_approve", "bob", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FilterToApprove, gotFilter)
	assert.Equal(t, "bob", gotUser)

	// nil slice from the service renders as an empty JSON array
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestListRequests_DefaultsToMine(t *testing.T) {
	var gotFilter models.RequestFilter
	service := &stubService{
		listFn: func(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
			gotFilter = filter
			return []*models.PaymentRequest{sampleRequest()}, nil
		},
	}
	srv := newTestServer(service, &stubNotifications{})

	w := doRequest(srv, http.MethodGet, "/api/v1/requests", "alice", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FilterMine, gotFilter)
}

func TestListNotifications(t *testing.T) {
	notifications := &stubNotifications{
		listFn: func(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
			return []*models.Notification{
				{ID: "n-1", UserID: userID, Kind: models.NotificationRequestCreated},
			}, nil
		},
	}
	srv := newTestServer(&stubService{}, notifications)

	w := doRequest(srv, http.MethodGet, "/api/v1/notifications", "bob", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "n-1")
}

func TestListNotifications_MissingIdentity(t *testing.T) {
	srv := newTestServer(&stubService{}, &stubNotifications{})

	w := doRequest(srv, http.MethodGet, "/api/v1/notifications", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
