package payment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestStripeCheckout_CreateTransaction(t *testing.T) {
	gw := NewStripeCheckout("sk_test_abc").(*stripeCheckout)

	req := TransactionRequest{
		Reference:  "ord-123",
		Amount:     11000,
		Currency:   "CHF",
		SuccessURL: "https://shop.example.com/verify?success=true&orderId=ord-123",
		CancelURL:  "https://shop.example.com/verify?success=false&orderId=ord-123",
		Items: []TransactionItem{
			{Name: "T-Shirt", Quantity: 2, UnitPrice: 5000},
			{Name: "Delivery Charges", Quantity: 1, UnitPrice: 1000},
		},
	}

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "https://api.stripe.com/v1/checkout/sessions", r.URL.String())
			assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))

			body, _ := io.ReadAll(r.Body)
			form := string(body)
			assert.Contains(t, form, "mode=payment")
			assert.Contains(t, form, "client_reference_id=ord-123")
			assert.Contains(t, form, "line_items%5B0%5D%5Bquantity%5D=2")
			assert.Contains(t, form, "unit_amount%5D=5000")

			return jsonResponse(200, `{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
		})

		resp, err := gw.CreateTransaction(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", resp.ExternalRef)
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", resp.PaymentURL)
	})

	t.Run("Declined", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(402, `{"error":{"type":"card_error","message":"card declined"}}`)
		})

		_, err := gw.CreateTransaction(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayDeclined)
		assert.Contains(t, err.Error(), "card declined")
	})

	t.Run("TransportError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := gw.CreateTransaction(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(200, `{"id":""}`)
		})

		_, err := gw.CreateTransaction(context.Background(), req)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestStripeCheckout_GetTransactionStatus(t *testing.T) {
	gw := NewStripeCheckout("sk_test_abc").(*stripeCheckout)

	t.Run("Paid", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "GET", r.Method)
			assert.Equal(t, "https://api.stripe.com/v1/checkout/sessions/cs_test_1", r.URL.String())

			return jsonResponse(200, `{"id":"cs_test_1","status":"complete","payment_status":"paid","payment_intent":"pi_789"}`)
		})

		status, err := gw.GetTransactionStatus(context.Background(), "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, TxnConfirmed, status.State)
		assert.Equal(t, "pi_789", status.TransactionID)
	})

	t.Run("Unpaid", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(200, `{"id":"cs_test_1","status":"open","payment_status":"unpaid"}`)
		})

		status, err := gw.GetTransactionStatus(context.Background(), "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, TxnPending, status.State)
	})

	t.Run("Expired", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(200, `{"id":"cs_test_1","status":"expired","payment_status":"unpaid"}`)
		})

		status, err := gw.GetTransactionStatus(context.Background(), "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, TxnCancelled, status.State)
	})

	t.Run("HTTPError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(500, `{}`)
		})

		_, err := gw.GetTransactionStatus(context.Background(), "cs_test_1")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})
}
