package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vestra-be/internal/logger"
	"vestra-be/internal/metrics"

	"go.uber.org/zap"
)

const stripeBaseURL = "https://api.stripe.com"

// stripeCheckout drives Stripe's hosted Checkout Sessions. The caller is
// redirected to the session URL and returns through the success/cancel URLs
// this system generated.
type stripeCheckout struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewStripeCheckout(secretKey string) Gateway {
	if secretKey == "" {
		logger.L().Warn("Stripe secret key is empty")
	}

	return &stripeCheckout{
		secretKey: secretKey,
		baseURL:   stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *stripeCheckout) CreateTransaction(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("reference", req.Reference),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
	)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.Reference)

	for i, item := range req.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", strings.ToLower(req.Currency))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitPrice, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	timer := metrics.StartTimer()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Stripe request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		var stripeErr stripeErrorResponse
		_ = json.Unmarshal(bodyBytes, &stripeErr)
		log.Error("Stripe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", stripeErr.Error.Type),
			zap.String("error_message", stripeErr.Error.Message),
		)
		return nil, fmt.Errorf("%w: %s", ErrGatewayDeclined, stripeErr.Error.Message)
	}

	var session stripeSession
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		log.Error("Failed decoding Stripe response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("%w: session id or url missing", ErrMalformedResponse)
	}

	log.Info("Stripe checkout session created",
		zap.String("session_id", session.ID),
		zap.Duration("took", timer.Duration()),
	)

	return &TransactionResponse{
		ExternalRef: session.ID,
		PaymentURL:  session.URL,
	}, nil
}

func (s *stripeCheckout) GetTransactionStatus(ctx context.Context, externalRef string) (*TransactionStatus, error) {
	log := logger.FromCtx(ctx).With(zap.String("session_id", externalRef))

	httpReq, err := http.NewRequestWithContext(ctx, "GET",
		s.baseURL+"/v1/checkout/sessions/"+url.PathEscape(externalRef), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Stripe request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Stripe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var session stripeSession
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	status := &TransactionStatus{TransactionID: session.PaymentIntent}
	switch {
	case session.PaymentStatus == "paid":
		status.State = TxnConfirmed
	case session.Status == "expired":
		status.State = TxnCancelled
	default:
		status.State = TxnPending
	}

	log.Info("Stripe session status fetched",
		zap.String("payment_status", session.PaymentStatus),
		zap.String("session_status", session.Status),
	)

	return status, nil
}
