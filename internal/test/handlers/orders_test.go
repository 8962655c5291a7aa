package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"taletoprint-backend/internal/fulfillment"
	"taletoprint-backend/internal/handlers"
	"taletoprint-backend/internal/models"
	"taletoprint-backend/internal/store"
)

// stubStore serves a single order by ID.
type stubStore struct {
	order *models.Order
}

func (s *stubStore) GetOrder(orderID string) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, store.ErrNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubStore) ListOrders(limit int) ([]models.Order, error) {
	if s.order == nil {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubStore) CreateOrder(order *models.Order) error               { return nil }
func (s *stubStore) UpdateStatus(string, models.OrderStatus) error       { return nil }
func (s *stubStore) UpdateStatusFrom(string, models.OrderStatus, models.OrderStatus) error {
	return nil
}
func (s *stubStore) UpdatePaymentStatus(string, string) error            { return nil }
func (s *stubStore) SetHDImageURL(string, string) error                  { return nil }
func (s *stubStore) SetPrintAssetURL(string, string) error               { return nil }
func (s *stubStore) SetPartnerOrderID(string, string) error              { return nil }
func (s *stubStore) SetPaymentIntentID(string, string) error             { return nil }
func (s *stubStore) ClearArtifacts(string) error                         { return nil }
func (s *stubStore) MergeMetadata(string, map[string]interface{}) error  { return nil }
func (s *stubStore) GetPreview(string) (*models.Preview, error)          { return nil, store.ErrNotFound }

type stubOperatorService struct {
	err    error
	called []string
}

func (s *stubOperatorService) record(op, orderID string) error {
	s.called = append(s.called, op+":"+orderID)
	return s.err
}

func (s *stubOperatorService) Retry(_ context.Context, id string) error      { return s.record("retry", id) }
func (s *stubOperatorService) Regenerate(_ context.Context, id string) error { return s.record("regenerate", id) }
func (s *stubOperatorService) Approve(_ context.Context, id string) error    { return s.record("approve", id) }
func (s *stubOperatorService) Refund(_ context.Context, id string) error     { return s.record("refund", id) }

func newOrdersRouter(orders fulfillment.OrderStore, service handlers.OperatorService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewOrdersHandler(orders, service)

	router := gin.New()
	router.GET("/api/v1/orders", handler.ListOrders)
	router.GET("/api/v1/orders/:order_id", handler.GetOrder)
	router.POST("/api/v1/orders/:order_id/retry", handler.Retry)
	router.POST("/api/v1/orders/:order_id/approve", handler.Approve)
	router.POST("/api/v1/orders/:order_id/refund", handler.Refund)
	return router
}

func testOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:          "TTP-ABC123",
		Email:       "jo@example.com",
		Status:      status,
		AmountTotal: 5999,
		Currency:    "gbp",
		PrintSize:   "A4",
	}
}

func TestGetOrder_ReturnsOrder(t *testing.T) {
	router := newOrdersRouter(&stubStore{order: testOrder(models.StatusAwaitingApproval)}, &stubOperatorService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/orders/TTP-ABC123", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"TTP-ABC123"`)
	assert.Contains(t, w.Body.String(), "59.99 GBP")
}

func TestGetOrder_NotFound(t *testing.T) {
	router := newOrdersRouter(&stubStore{}, &stubOperatorService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/orders/TTP-NOPE", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders_ReturnsSummaries(t *testing.T) {
	router := newOrdersRouter(&stubStore{order: testOrder(models.StatusPrinting)}, &stubOperatorService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"printing"`)
}

func TestAction_SuccessReportsNewStatus(t *testing.T) {
	service := &stubOperatorService{}
	router := newOrdersRouter(&stubStore{order: testOrder(models.StatusPrinting)}, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/orders/TTP-ABC123/approve", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"order_id": "TTP-ABC123", "status": "printing"}`, w.Body.String())
	assert.Equal(t, []string{"approve:TTP-ABC123"}, service.called)
}

func TestAction_StateErrorsMapToConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"wrong status", fmt.Errorf("order is pending: %w", fulfillment.ErrWrongStatus)},
		{"terminal status", fmt.Errorf("order is refunded: %w", fulfillment.ErrTerminalStatus)},
		{"already refunded", fulfillment.ErrAlreadyRefunded},
		{"missing asset", fulfillment.ErrMissingAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newOrdersRouter(&stubStore{order: testOrder(models.StatusRefunded)}, &stubOperatorService{err: tt.err})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/orders/TTP-ABC123/refund", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusConflict, w.Code)
		})
	}
}

func TestAction_UnknownOrderMapsToNotFound(t *testing.T) {
	router := newOrdersRouter(&stubStore{}, &stubOperatorService{err: store.ErrNotFound})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/orders/TTP-NOPE/retry", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAction_UnexpectedErrorMapsTo500(t *testing.T) {
	router := newOrdersRouter(&stubStore{order: testOrder(models.StatusFailed)}, &stubOperatorService{err: assert.AnError})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/orders/TTP-ABC123/retry", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
