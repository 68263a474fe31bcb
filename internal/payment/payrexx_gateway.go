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

const payrexxBaseURL = "https://api.payrexx.com/v1.0"

// payrexxGateway drives the Payrexx link/QR gateway. Every request body is a
// sorted form-encoded string signed with an ApiSignature header; settlement
// is confirmed out of band via polling or webhook.
type payrexxGateway struct {
	instance   string
	signer     *Signer
	baseURL    string
	httpClient *http.Client
}

func NewPayrexxGateway(instance string, signer *Signer) Gateway {
	if instance == "" {
		logger.L().Warn("Payrexx instance is empty")
	}

	return &payrexxGateway{
		instance: instance,
		signer:   signer,
		baseURL:  payrexxBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type payrexxResponse struct {
	Status string `json:"status"`
	Data   []struct {
		ID      int    `json:"id"`
		Link    string `json:"link"`
		QRCode  string `json:"qrCode"`
		Status  string `json:"status"`
		Invoice struct {
			PaymentRequestID string `json:"paymentRequestId"`
		} `json:"invoice"`
	} `json:"data"`
	Message string `json:"message"`
}

func (p *payrexxGateway) CreateTransaction(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("reference", req.Reference),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
	)

	form := url.Values{}
	form.Set("instance", p.instance)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("referenceId", req.Reference)
	form.Set("successRedirectUrl", req.SuccessURL)
	form.Set("failedRedirectUrl", req.FailedURL)
	form.Set("cancelRedirectUrl", req.CancelURL)
	if req.Purpose != "" {
		form.Set("purpose", req.Purpose)
	}

	body, signature := p.signer.SignForm(form)

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		p.baseURL+"/Gateway/", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("ApiSignature", signature)

	timer := metrics.StartTimer()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Payrexx request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	result, err := decodePayrexx(resp)
	if err != nil {
		log.Error("Payrexx gateway creation failed", zap.Error(err))
		return nil, err
	}

	gw := result.Data[0]
	log.Info("Payrexx gateway created",
		zap.Int("gateway_id", gw.ID),
		zap.Duration("took", timer.Duration()),
	)

	return &TransactionResponse{
		ExternalRef: strconv.Itoa(gw.ID),
		PaymentURL:  gw.Link,
		QRCode:      gw.QRCode,
	}, nil
}

func (p *payrexxGateway) GetTransactionStatus(ctx context.Context, externalRef string) (*TransactionStatus, error) {
	log := logger.FromCtx(ctx).With(zap.String("gateway_id", externalRef))

	form := url.Values{}
	form.Set("instance", p.instance)
	qs, signature := p.signer.SignForm(form)

	httpReq, err := http.NewRequestWithContext(ctx, "GET",
		p.baseURL+"/Gateway/"+url.PathEscape(externalRef)+"/?"+qs, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("ApiSignature", signature)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Payrexx request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	result, err := decodePayrexx(resp)
	if err != nil {
		log.Error("Payrexx gateway retrieval failed", zap.Error(err))
		return nil, err
	}

	gw := result.Data[0]
	log.Info("Payrexx gateway status fetched", zap.String("status", gw.Status))

	return &TransactionStatus{
		State:         mapPayrexxStatus(gw.Status),
		TransactionID: gw.Invoice.PaymentRequestID,
	}, nil
}

// decodePayrexx normalizes a Payrexx HTTP response into the shared error
// taxonomy and guarantees at least one data entry on success.
func decodePayrexx(resp *http.Response) (*payrexxResponse, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var result payrexxResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrGatewayDeclined, result.Message)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedResponse)
	}

	return &result, nil
}

func mapPayrexxStatus(status string) TxnState {
	switch status {
	case "confirmed", "authorized":
		return TxnConfirmed
	case "cancelled", "expired":
		return TxnCancelled
	case "declined", "failed", "error", "chargeback":
		return TxnFailed
	default:
		// waiting, reserved (a hold before capture) and anything
		// unrecognized stays pending; such a status must never finalize
		// an order in either direction.
		return TxnPending
	}
}
