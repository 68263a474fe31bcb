package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"vestra-be/internal/logger"
	"vestra-be/internal/metrics"
	"vestra-be/internal/order"
	"vestra-be/internal/payment"
	"vestra-be/internal/utils"

	"go.uber.org/zap"
)

const providerPayrexx = "payrexx"

// OrderService is the slice of the order orchestrator a webhook delivery
// needs.
type OrderService interface {
	ConfirmFromWebhook(ctx context.Context, referenceID, txnID string) error
	FailFromWebhook(ctx context.Context, referenceID, txnID string) error
	CancelFromWebhook(ctx context.Context, referenceID string) error
}

// PayrexxHandler receives gateway webhook deliveries. Every delivery is
// signature-checked first, then recorded for dedup before any state
// transition runs.
type PayrexxHandler struct {
	signer *payment.Signer
	repo   payment.Repository
	orders OrderService

	rejected metrics.Counter
}

func NewPayrexxHandler(signer *payment.Signer, repo payment.Repository, orders OrderService) *PayrexxHandler {
	return &PayrexxHandler{
		signer: signer,
		repo:   repo,
		orders: orders,
	}
}

type payrexxEvent struct {
	Transaction struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		ReferenceID string `json:"referenceId"`
	} `json:"transaction"`
}

// Handle processes one delivery. 2xx acknowledges the event so the provider
// stops retrying; non-2xx asks for retry. An invalid signature gets 401 and
// is never retried into a state change.
func (h *PayrexxHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("ApiSignature")
	if signature == "" || !h.signer.Verify(body, signature) {
		h.rejected.Inc()
		log.Warn("webhook rejected: bad signature",
			zap.Uint64("rejected_total", h.rejected.Load()))
		utils.WriteJSONError(w, payment.ErrInvalidSignature.Error(), http.StatusUnauthorized)
		return
	}

	var event payrexxEvent
	if err := json.Unmarshal(body, &event); err != nil {
		utils.WriteJSONError(w, "malformed payload", http.StatusBadRequest)
		return
	}
	txn := event.Transaction
	if txn.ID == 0 || txn.Status == "" || txn.ReferenceID == "" {
		utils.WriteJSONError(w, "malformed payload", http.StatusBadRequest)
		return
	}

	// One event per transaction per status; a retry of the same event is
	// a duplicate, a later status for the same transaction is not.
	eventID := fmt.Sprintf("%d:%s", txn.ID, txn.Status)
	eventType := "transaction." + txn.Status

	// Only a delivery that was processed to completion counts as a
	// duplicate; a redelivery after a failed attempt runs again.
	webhookID, alreadyProcessed, err := h.repo.SaveWebhook(
		ctx, providerPayrexx, eventID, eventType, txn.ReferenceID, body, true)
	if err != nil {
		log.Error("failed to record webhook", zap.Error(err))
		utils.WriteJSONError(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if alreadyProcessed {
		log.Info("duplicate webhook acknowledged",
			zap.String("event_id", eventID))
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "already processed",
		})
		return
	}

	if err := h.dispatch(ctx, txn.Status, txn.ReferenceID, fmt.Sprintf("%d", txn.ID)); err != nil {
		if markErr := h.repo.MarkWebhookFailed(ctx, webhookID, err.Error()); markErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(markErr))
		}

		if errors.Is(err, order.ErrOrderNotFound) {
			// No order will ever appear for this reference; retrying
			// cannot help.
			log.Warn("webhook references unknown order",
				zap.String("reference_id", txn.ReferenceID))
			utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"message": "unknown reference",
			})
			return
		}

		log.Error("webhook processing failed",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if err := h.repo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}

	log.Info("webhook processed",
		zap.String("event_id", eventID),
		zap.String("reference_id", txn.ReferenceID),
	)
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *PayrexxHandler) dispatch(ctx context.Context, status, referenceID, txnID string) error {
	switch status {
	case "confirmed", "authorized":
		return h.orders.ConfirmFromWebhook(ctx, referenceID, txnID)
	case "declined", "failed", "error", "chargeback":
		return h.orders.FailFromWebhook(ctx, referenceID, txnID)
	case "cancelled", "expired":
		return h.orders.CancelFromWebhook(ctx, referenceID)
	default:
		// waiting, reserved and friends carry no transition yet;
		// acknowledge so the provider stops retrying.
		logger.FromCtx(ctx).Info("webhook status ignored",
			zap.String("status", status))
		return nil
	}
}
