package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/repository"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/order"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/payment"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/pricing"
)

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(ctx context.Context, o *models.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockOrders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) GetByPaymentOrderNo(ctx context.Context, no string) (*models.Order, error) {
	args := m.Called(ctx, no)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) List(ctx context.Context, f repository.OrderFilter) ([]models.Order, int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]models.Order), args.Get(1).(int64), args.Error(2)
}

func (m *mockOrders) ConditionalUpdate(ctx context.Context, id uuid.UUID, g repository.OrderGuard, p repository.OrderPatch) (*models.Order, error) {
	args := m.Called(ctx, id, g, p)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *mockOrders) Stats(ctx context.Context) (*repository.OrderStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*repository.OrderStats)
	return s, args.Error(1)
}

type discard struct{}

func (discard) Publish(models.Notification) {}

type envelope struct {
	Success bool                `json:"success"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
	Data    json.RawMessage     `json:"data"`
}

type testServer struct {
	app     *fiber.App
	orders  *mockOrders
	gateway *payment.Gateway
}

// newServer mounts the payment and order routes. The X-Test-User header
// stands in for authentication: "<role>:<uuid>".
func newServer(t *testing.T) *testServer {
	t.Helper()
	orders := &mockOrders{}
	t.Cleanup(func() { orders.AssertExpectations(t) })

	prices := pricing.NewTable(100)
	engine := order.NewEngine(order.Deps{
		Orders:   orders,
		Prices:   prices,
		Notifier: discard{},
		Metrics:  metrics.NewNop(),
		Log:      zap.NewNop(),
	}, order.Policy{StrictOwnership: true})
	gateway := payment.NewGateway("test-secret", "http://pay.local")

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Use(func(c *fiber.Ctx) error {
		if h := c.Get("X-Test-User"); h != "" {
			role, id, _ := strings.Cut(h, ":")
			middleware.SetUser(c, &models.User{ID: uuid.MustParse(id), Role: models.Role(role)})
		}
		return c.Next()
	})

	oh := NewOrderHandler(engine, gateway, prices)
	ph := NewPaymentHandler(engine, gateway, zap.NewNop())
	app.Get("/api/prices", oh.ListPrices)
	app.Get("/api/orders/:id", oh.Get)
	app.Post("/api/payments/callback", ph.HandleCallback)
	app.Post("/api/payments/:paymentNo/simulate", ph.Simulate)

	return &testServer{app: app, orders: orders, gateway: gateway}
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/validation", func(*fiber.Ctx) error {
		fields := apperr.FieldErrors{}
		fields.Add("phone", "phone is required")
		fields.Add("password", "password must be at least 6 characters")
		return apperr.Validation(fields)
	})
	app.Get("/rated", func(*fiber.Ctx) error { return apperr.New(apperr.KindAlreadyRated, "order already rated") })
	app.Get("/bad", func(*fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "invalid body") })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection refused") })

	tests := []struct {
		path    string
		status  int
		code    string
		message string
	}{
		{"/validation", http.StatusUnprocessableEntity, string(apperr.KindValidation), ""},
		{"/rated", http.StatusConflict, string(apperr.KindAlreadyRated), "order already rated"},
		{"/bad", http.StatusBadRequest, string(apperr.KindValidation), "invalid body"},
		{"/boom", http.StatusInternalServerError, string(apperr.KindInternal), "internal server error"},
	}
	s := &testServer{app: app}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, env := s.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}
			assert.Equal(t, "null", string(env.Data))
		})
	}

	_, env := s.do(t, httptest.NewRequest(http.MethodGet, "/validation", nil))
	assert.Len(t, env.Errors, 2)
}

func TestListPrices(t *testing.T) {
	s := newServer(t)
	status, env := s.do(t, httptest.NewRequest(http.MethodGet, "/api/prices", nil))
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Fallback int64 `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(100), data.Fallback)
}

func TestGetOrderMalformedID(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/orders/not-a-uuid", nil)
	req.Header.Set("X-Test-User", "admin:"+uuid.NewString())

	status, env := s.do(t, req)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(apperr.KindNotFound), env.Code)
}

func TestGetOrderLabel(t *testing.T) {
	s := newServer(t)
	owner := uuid.New()
	o := &models.Order{ID: uuid.New(), UserID: &owner, Status: models.StatusInProgress, Amount: 150}
	s.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+o.ID.String(), nil)
	req.Header.Set("X-Test-User", "user:"+owner.String())
	status, env := s.do(t, req)
	require.Equal(t, http.StatusOK, status)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "in_progress", data["status"])
	assert.Equal(t, models.StatusInProgress.Label(), data["status_label"])
}

func callbackRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(payment.SignatureHeader, signature)
	}
	return req
}

func TestPaymentCallbackRejectsBadSignature(t *testing.T) {
	s := newServer(t)
	body, sig, err := s.gateway.BuildCallback("PAY1", 150, true, "")
	require.NoError(t, err)

	status, _ := s.do(t, callbackRequest(body, ""))
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := s.do(t, callbackRequest(body, "deadbeef"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid signature", env.Message)

	tampered := bytes.Replace(body, []byte(`"PAY1"`), []byte(`"PAY2"`), 1)
	status, _ = s.do(t, callbackRequest(tampered, sig))
	assert.Equal(t, http.StatusBadRequest, status)

	s.orders.AssertNotCalled(t, "GetByPaymentOrderNo", mock.Anything, mock.Anything)
}

func TestPaymentCallbackMarksPaid(t *testing.T) {
	s := newServer(t)
	owner := uuid.New()
	no := "PAY42"
	o := &models.Order{
		ID: uuid.New(), UserID: &owner, Status: models.StatusPending,
		Amount: 150, PaymentStatus: models.PaymentPending, PaymentOrderNo: &no,
	}
	body, sig, err := s.gateway.BuildCallback(no, 150, true, "")
	require.NoError(t, err)

	paid := *o
	paid.Status = models.StatusInProgress
	paid.PaymentStatus = models.PaymentPaid

	s.orders.On("GetByPaymentOrderNo", mock.Anything, no).Return(o, nil).Once()
	s.orders.On("ConditionalUpdate", mock.Anything, o.ID, mock.Anything,
		mock.MatchedBy(func(p repository.OrderPatch) bool {
			return p.PaymentStatus != nil && *p.PaymentStatus == models.PaymentPaid &&
				bytes.Equal(p.PaymentCallback, body)
		}),
	).Return(&paid, nil).Once()

	status, env := s.do(t, callbackRequest(body, sig))
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "paid", data["payment_status"])
	assert.Equal(t, "in_progress", data["status"])
}

func TestPaymentCallbackUnknownPayment(t *testing.T) {
	s := newServer(t)
	body, sig, err := s.gateway.BuildCallback("PAY404", 150, false, "card declined")
	require.NoError(t, err)
	s.orders.On("GetByPaymentOrderNo", mock.Anything, "PAY404").Return(nil, repository.ErrNotFound).Once()

	status, env := s.do(t, callbackRequest(body, sig))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(apperr.KindNotFound), env.Code)
}

func TestSimulatePayment(t *testing.T) {
	owner := uuid.New()
	no := "PAY7"
	pending := func() *models.Order {
		return &models.Order{
			ID: uuid.New(), UserID: &owner, Status: models.StatusConfirmed,
			Amount: 150, PaymentStatus: models.PaymentPending, PaymentOrderNo: &no,
		}
	}

	t.Run("anonymous", func(t *testing.T) {
		s := newServer(t)
		status, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/api/payments/"+no+"/simulate", nil))
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("someone else's payment", func(t *testing.T) {
		s := newServer(t)
		s.orders.On("GetByPaymentOrderNo", mock.Anything, no).Return(pending(), nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/payments/"+no+"/simulate", nil)
		req.Header.Set("X-Test-User", "user:"+uuid.NewString())
		status, _ := s.do(t, req)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("unknown result", func(t *testing.T) {
		s := newServer(t)
		s.orders.On("GetByPaymentOrderNo", mock.Anything, no).Return(pending(), nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/payments/"+no+"/simulate?result=maybe", nil)
		req.Header.Set("X-Test-User", "user:"+owner.String())
		status, env := s.do(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, env.Errors, "result")
	})

	t.Run("fail", func(t *testing.T) {
		s := newServer(t)
		o := pending()
		failed := *o
		failed.PaymentStatus = models.PaymentFailed
		s.orders.On("GetByPaymentOrderNo", mock.Anything, no).Return(o, nil).Twice()
		s.orders.On("ConditionalUpdate", mock.Anything, o.ID, mock.Anything,
			mock.MatchedBy(func(p repository.OrderPatch) bool {
				return p.PaymentStatus != nil && *p.PaymentStatus == models.PaymentFailed &&
					p.PaymentFailReason != nil && *p.PaymentFailReason == "gateway reported FAILED: simulated"
			}),
		).Return(&failed, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/payments/"+no+"/simulate?result=fail", nil)
		req.Header.Set("X-Test-User", "user:"+owner.String())
		status, env := s.do(t, req)
		require.Equal(t, http.StatusOK, status)

		var data map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "failed", data["payment_status"])
		assert.Equal(t, "confirmed", data["status"])
	})
}
