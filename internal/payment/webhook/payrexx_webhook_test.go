package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vestra-be/internal/order"
	"vestra-be/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) ConfirmFromWebhook(ctx context.Context, referenceID, txnID string) error {
	return m.Called(ctx, referenceID, txnID).Error(0)
}

func (m *MockOrderService) FailFromWebhook(ctx context.Context, referenceID, txnID string) error {
	return m.Called(ctx, referenceID, txnID).Error(0)
}

func (m *MockOrderService) CancelFromWebhook(ctx context.Context, referenceID string) error {
	return m.Called(ctx, referenceID).Error(0)
}

type MockWebhookRepo struct {
	mock.Mock
}

func (m *MockWebhookRepo) SaveWebhook(ctx context.Context, provider, eventID, eventType, referenceID string, payload json.RawMessage, signatureValid bool) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, referenceID, payload, signatureValid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockWebhookRepo) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	return m.Called(ctx, webhookID).Error(0)
}

func (m *MockWebhookRepo) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	return m.Called(ctx, webhookID, reason).Error(0)
}

const testSecret = "payrexx-secret"

func eventBody(t *testing.T, id int64, status, referenceID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"transaction": map[string]interface{}{
			"id":          id,
			"status":      status,
			"referenceId": referenceID,
		},
	})
	require.NoError(t, err)
	return body
}

func deliver(h *PayrexxHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/payrexx", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("ApiSignature", signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestPayrexxHandler_Confirmed(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ord-1")

	repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:confirmed",
		"transaction.confirmed", "ord-1", json.RawMessage(body), true).
		Return(int64(1), false, nil)
	orders.On("ConfirmFromWebhook", mock.Anything, "ord-1", "4242").Return(nil)
	repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

	rec := deliver(h, body, signer.Sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestPayrexxHandler_BadSignature(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ord-1")

	t.Run("WrongSecret", func(t *testing.T) {
		forged := payment.NewSigner("attacker-secret").Sign(body)
		rec := deliver(h, body, forged)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		rec := deliver(h, body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("TamperedBody", func(t *testing.T) {
		signature := signer.Sign(body)
		tampered := eventBody(t, 4242, "confirmed", "ord-2")
		rec := deliver(h, tampered, signature)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	// Nothing may reach storage or the orchestrator on a rejected
	// delivery.
	repo.AssertNotCalled(t, "SaveWebhook", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "ConfirmFromWebhook", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayrexxHandler_Duplicate(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ord-1")

	repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:confirmed",
		"transaction.confirmed", "ord-1", json.RawMessage(body), true).
		Return(int64(1), true, nil)

	rec := deliver(h, body, signer.Sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	orders.AssertNotCalled(t, "ConfirmFromWebhook", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayrexxHandler_RedeliveryAfterFailureRunsAgain(t *testing.T) {
	// A delivery whose processing failed must not be absorbed by dedup:
	// the provider's retry has to reach the order service.
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ord-1")
	signature := signer.Sign(body)

	repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:confirmed",
		"transaction.confirmed", "ord-1", json.RawMessage(body), true).
		Return(int64(1), false, nil).Twice()
	orders.On("ConfirmFromWebhook", mock.Anything, "ord-1", "4242").
		Return(errors.New("store unreachable")).Once()
	repo.On("MarkWebhookFailed", mock.Anything, int64(1), mock.AnythingOfType("string")).
		Return(nil).Once()

	rec := deliver(h, body, signature)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	orders.On("ConfirmFromWebhook", mock.Anything, "ord-1", "4242").
		Return(nil).Once()
	repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil).Once()

	rec = deliver(h, body, signature)
	assert.Equal(t, http.StatusOK, rec.Code)

	repo.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestPayrexxHandler_StatusRouting(t *testing.T) {
	signer := payment.NewSigner(testSecret)

	tests := []struct {
		status string
		call   string
	}{
		{"confirmed", "ConfirmFromWebhook"},
		{"declined", "FailFromWebhook"},
		{"failed", "FailFromWebhook"},
		{"cancelled", "CancelFromWebhook"},
		{"expired", "CancelFromWebhook"},
	}

	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			repo := new(MockWebhookRepo)
			orders := new(MockOrderService)
			h := NewPayrexxHandler(signer, repo, orders)

			body := eventBody(t, 4242, tc.status, "ord-1")

			repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:"+tc.status,
				"transaction."+tc.status, "ord-1", json.RawMessage(body), true).
				Return(int64(1), false, nil)
			repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

			switch tc.call {
			case "ConfirmFromWebhook", "FailFromWebhook":
				orders.On(tc.call, mock.Anything, "ord-1", "4242").Return(nil)
			case "CancelFromWebhook":
				orders.On(tc.call, mock.Anything, "ord-1").Return(nil)
			}

			rec := deliver(h, body, signer.Sign(body))

			assert.Equal(t, http.StatusOK, rec.Code)
			orders.AssertExpectations(t)
		})
	}
}

func TestPayrexxHandler_IgnoredStatus(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	for _, status := range []string{"waiting", "reserved"} {
		body := eventBody(t, 4242, status, "ord-1")

		repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:"+status,
			"transaction."+status, "ord-1", json.RawMessage(body), true).
			Return(int64(1), false, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

		rec := deliver(h, body, signer.Sign(body))

		assert.Equal(t, http.StatusOK, rec.Code, status)
	}

	orders.AssertNotCalled(t, "ConfirmFromWebhook", mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "FailFromWebhook", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayrexxHandler_UnknownOrder(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ghost")

	repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:confirmed",
		"transaction.confirmed", "ghost", json.RawMessage(body), true).
		Return(int64(1), false, nil)
	orders.On("ConfirmFromWebhook", mock.Anything, "ghost", "4242").
		Return(order.ErrOrderNotFound)
	repo.On("MarkWebhookFailed", mock.Anything, int64(1), mock.AnythingOfType("string")).
		Return(nil)

	rec := deliver(h, body, signer.Sign(body))

	// Acknowledged: retrying a reference that maps to no order cannot
	// succeed later.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPayrexxHandler_ProcessingFailureAsksForRetry(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	repo := new(MockWebhookRepo)
	orders := new(MockOrderService)
	h := NewPayrexxHandler(signer, repo, orders)

	body := eventBody(t, 4242, "confirmed", "ord-1")

	repo.On("SaveWebhook", mock.Anything, "payrexx", "4242:confirmed",
		"transaction.confirmed", "ord-1", json.RawMessage(body), true).
		Return(int64(1), false, nil)
	orders.On("ConfirmFromWebhook", mock.Anything, "ord-1", "4242").
		Return(errors.New("db down"))
	repo.On("MarkWebhookFailed", mock.Anything, int64(1), mock.AnythingOfType("string")).
		Return(nil)

	rec := deliver(h, body, signer.Sign(body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPayrexxHandler_MalformedPayload(t *testing.T) {
	signer := payment.NewSigner(testSecret)
	h := NewPayrexxHandler(signer, new(MockWebhookRepo), new(MockOrderService))

	t.Run("NotJSON", func(t *testing.T) {
		body := []byte("not json at all")
		rec := deliver(h, body, signer.Sign(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MissingReference", func(t *testing.T) {
		body := []byte(`{"transaction":{"id":4242,"status":"confirmed"}}`)
		rec := deliver(h, body, signer.Sign(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
