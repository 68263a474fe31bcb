package order

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"vestra-be/internal/logger"
	"vestra-be/internal/metrics"
	"vestra-be/internal/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	currency       = "CHF"
	deliveryCharge = 1000 // cents, shown as its own line item
)

// CartClearer is the single side effect a successful payment fires against
// the user record.
type CartClearer interface {
	ClearCart(ctx context.Context, userID uint) error
}

type CreateOrderInput struct {
	Items   []OrderItem
	Amount  int64
	Address Address
	Method  PaymentMethod
}

type CreateOrderResult struct {
	Order      *Order
	PaymentURL string
	QRCode     string
}

// VerifyResult reports the payment state after a reconciliation attempt and
// whether this attempt performed the transition (side effects fire only
// when it did).
type VerifyResult struct {
	OrderID      string
	State        PaymentState
	Transitioned bool
}

type Service interface {
	CreateOrder(ctx context.Context, userID uint, in CreateOrderInput) (*CreateOrderResult, error)

	// VerifyCheckout handles the hosted-checkout redirect return. The
	// successHint comes from the redirect URL this system generated; it is
	// treated as a hint only and a positive outcome is always re-checked
	// against the provider.
	VerifyCheckout(ctx context.Context, orderID string, successHint bool) (*VerifyResult, error)

	// VerifyGateway re-fetches the authoritative transaction status for a
	// link-gateway order. Idempotent; safe to call from a sweep.
	VerifyGateway(ctx context.Context, orderID string) (*VerifyResult, error)

	ConfirmFromWebhook(ctx context.Context, referenceID, txnID string) error
	FailFromWebhook(ctx context.Context, referenceID, txnID string) error
	CancelFromWebhook(ctx context.Context, referenceID string) error

	GetUserOrders(ctx context.Context, userID uint) ([]*Order, error)
	GetAllOrders(ctx context.Context) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) error

	// ReconcilePending re-queries link-gateway orders stuck in PENDING
	// longer than olderThan and returns how many reached a terminal state.
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type service struct {
	repo        Repository
	carts       CartClearer
	gateways    map[PaymentMethod]payment.Gateway
	frontendURL string

	paidTransitions   metrics.Counter
	failedTransitions metrics.Counter
}

func NewService(repo Repository, carts CartClearer, gateways map[PaymentMethod]payment.Gateway, frontendURL string) Service {
	return &service{
		repo:        repo,
		carts:       carts,
		gateways:    gateways,
		frontendURL: frontendURL,
	}
}

func (s *service) CreateOrder(ctx context.Context, userID uint, in CreateOrderInput) (*CreateOrderResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	gw, isGateway := s.gateways[in.Method]
	if in.Method != MethodCOD && !isGateway {
		return nil, ErrInvalidPaymentMethod
	}

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Items:         in.Items,
		Amount:        in.Amount,
		Address:       in.Address,
		PaymentMethod: in.Method,
		PaymentState:  StatePending,
		Status:        DefaultStatus,
		CreatedAt:     time.Now(),
	}
	if in.Method == MethodCOD {
		// COD settles on delivery; it never enters gateway reconciliation.
		o.PaymentState = StateUnpaid
	}

	// Persist before any external call so a gateway failure can never
	// lose the order silently.
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("order_id", o.ID),
		zap.String("method", string(o.PaymentMethod)),
		zap.Int64("amount", o.Amount),
	)

	if in.Method == MethodCOD {
		if err := s.carts.ClearCart(ctx, userID); err != nil {
			return nil, fmt.Errorf("order placed but failed to clear cart: %w", err)
		}
		log.Info("COD order placed")
		return &CreateOrderResult{Order: o}, nil
	}

	resp, err := gw.CreateTransaction(ctx, s.buildTransactionRequest(o))
	if err != nil {
		// The order must not stay PENDING with no live gateway
		// transaction behind it.
		if _, failErr := s.repo.MarkFailedIfPending(ctx, o.ID); failErr != nil {
			log.Error("failed to mark order failed after gateway error", zap.Error(failErr))
		}
		s.failedTransitions.Inc()
		return nil, fmt.Errorf("failed to create gateway transaction: %w", err)
	}

	if err := s.repo.SetExternalRef(ctx, o.ID, resp.ExternalRef); err != nil {
		if _, failErr := s.repo.MarkFailedIfPending(ctx, o.ID); failErr != nil {
			log.Error("failed to mark order failed after ref write error", zap.Error(failErr))
		}
		return nil, fmt.Errorf("failed to record gateway reference: %w", err)
	}
	o.ExternalRef = &resp.ExternalRef

	log.Info("gateway order placed", zap.String("external_ref", resp.ExternalRef))

	return &CreateOrderResult{
		Order:      o,
		PaymentURL: resp.PaymentURL,
		QRCode:     resp.QRCode,
	}, nil
}

func (s *service) VerifyCheckout(ctx context.Context, orderID string, successHint bool) (*VerifyResult, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != MethodStripe {
		return nil, ErrInvalidPaymentMethod
	}
	if o.PaymentState.IsTerminal() {
		return &VerifyResult{OrderID: o.ID, State: o.PaymentState}, nil
	}

	if !successHint {
		// Buyer backed out of the hosted checkout; the still-unpaid
		// order is removed, matching a never-placed order.
		if err := s.repo.Delete(ctx, o.ID); err != nil {
			return nil, err
		}
		logger.FromCtx(ctx).Info("checkout cancelled, order deleted",
			zap.String("order_id", o.ID))
		return &VerifyResult{OrderID: o.ID, State: StateCancelled, Transitioned: true}, nil
	}

	// The hint is not proof of payment; ask the provider.
	return s.reconcile(ctx, o)
}

func (s *service) VerifyGateway(ctx context.Context, orderID string) (*VerifyResult, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != MethodPayrexx {
		return nil, ErrInvalidPaymentMethod
	}
	if o.PaymentState.IsTerminal() {
		return &VerifyResult{OrderID: o.ID, State: o.PaymentState}, nil
	}

	return s.reconcile(ctx, o)
}

// reconcile fetches the authoritative provider status for a pending order
// and applies the matching conditional transition. A provider error leaves
// the order PENDING; a later attempt may settle it.
func (s *service) reconcile(ctx context.Context, o *Order) (*VerifyResult, error) {
	if o.ExternalRef == nil {
		return nil, ErrMissingRef
	}

	gw, ok := s.gateways[o.PaymentMethod]
	if !ok {
		return nil, ErrInvalidPaymentMethod
	}

	status, err := gw.GetTransactionStatus(ctx, *o.ExternalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("order_id", o.ID),
		zap.String("provider_state", string(status.State)),
	)

	switch status.State {
	case payment.TxnConfirmed:
		transitioned, err := s.markPaid(ctx, o, status.TransactionID)
		if err != nil {
			return nil, err
		}
		log.Info("order reconciled as paid", zap.Bool("transitioned", transitioned))
		return &VerifyResult{OrderID: o.ID, State: StatePaid, Transitioned: transitioned}, nil

	case payment.TxnFailed:
		transitioned, err := s.repo.MarkFailedIfPending(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if transitioned {
			s.failedTransitions.Inc()
		}
		log.Info("order reconciled as failed")
		return &VerifyResult{OrderID: o.ID, State: StateFailed, Transitioned: transitioned}, nil

	case payment.TxnCancelled:
		transitioned, err := s.repo.MarkCancelledIfPending(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		log.Info("order reconciled as cancelled")
		return &VerifyResult{OrderID: o.ID, State: StateCancelled, Transitioned: transitioned}, nil

	default:
		// Not final at the provider; stay pending.
		return &VerifyResult{OrderID: o.ID, State: StatePending}, nil
	}
}

func (s *service) ConfirmFromWebhook(ctx context.Context, referenceID, txnID string) error {
	o, err := s.repo.GetByID(ctx, referenceID)
	if err != nil {
		return err
	}
	if o.PaymentMethod == MethodCOD {
		return ErrInvalidPaymentMethod
	}
	if o.PaymentState.IsTerminal() {
		// Redelivered event for a settled order; nothing to do.
		return nil
	}

	transitioned, err := s.markPaid(ctx, o, txnID)
	if err != nil {
		return err
	}

	logger.FromCtx(ctx).Info("webhook confirmed payment",
		zap.String("order_id", o.ID),
		zap.Bool("transitioned", transitioned),
	)
	return nil
}

func (s *service) FailFromWebhook(ctx context.Context, referenceID, txnID string) error {
	o, err := s.repo.GetByID(ctx, referenceID)
	if err != nil {
		return err
	}
	if o.PaymentState.IsTerminal() {
		return nil
	}

	transitioned, err := s.repo.MarkFailedIfPending(ctx, o.ID)
	if err != nil {
		return err
	}
	if transitioned {
		s.failedTransitions.Inc()
	}

	logger.FromCtx(ctx).Info("webhook reported failed payment",
		zap.String("order_id", o.ID),
		zap.String("txn_id", txnID),
	)
	return nil
}

func (s *service) CancelFromWebhook(ctx context.Context, referenceID string) error {
	o, err := s.repo.GetByID(ctx, referenceID)
	if err != nil {
		return err
	}
	if o.PaymentState.IsTerminal() {
		return nil
	}

	if _, err := s.repo.MarkCancelledIfPending(ctx, o.ID); err != nil {
		return err
	}

	logger.FromCtx(ctx).Info("webhook cancelled payment",
		zap.String("order_id", o.ID))
	return nil
}

// markPaid performs the conditional PENDING→PAID write and fires the
// at-most-once side effects only when this call won the transition.
func (s *service) markPaid(ctx context.Context, o *Order, txnID string) (bool, error) {
	transitioned, err := s.repo.MarkPaidIfPending(ctx, o.ID, txnID)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	s.paidTransitions.Inc()

	if err := s.carts.ClearCart(ctx, o.UserID); err != nil {
		// The payment is already settled; losing the cart clear must not
		// fail reconciliation.
		logger.FromCtx(ctx).Error("failed to clear cart after payment",
			zap.Uint("user_id", o.UserID),
			zap.Error(err),
		)
	}
	return true, nil
}

func (s *service) GetUserOrders(ctx context.Context, userID uint) ([]*Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) GetAllOrders(ctx context.Context) ([]*Order, error) {
	return s.repo.ListAll(ctx)
}

func (s *service) UpdateStatus(ctx context.Context, orderID, status string) error {
	if orderID == "" || status == "" {
		return ErrInvalidOrderInput
	}
	return s.repo.UpdateStatus(ctx, orderID, status)
}

func (s *service) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.repo.ListPendingBefore(ctx, MethodPayrexx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, o := range stale {
		res, err := s.reconcile(ctx, o)
		if err != nil {
			logger.FromCtx(ctx).Warn("sweep: reconciliation failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
			continue
		}
		if res.Transitioned {
			settled++
		}
	}

	logger.FromCtx(ctx).Info("sweep finished",
		zap.Int("checked", len(stale)),
		zap.Int("settled", settled),
		zap.Uint64("paid_total", s.paidTransitions.Load()),
		zap.Uint64("failed_total", s.failedTransitions.Load()),
	)
	return settled, nil
}

func (s *service) buildTransactionRequest(o *Order) payment.TransactionRequest {
	items := make([]payment.TransactionItem, 0, len(o.Items)+1)
	for _, it := range o.Items {
		items = append(items, payment.TransactionItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	items = append(items, payment.TransactionItem{
		Name:      "Delivery Charges",
		Quantity:  1,
		UnitPrice: deliveryCharge,
	})

	req := payment.TransactionRequest{
		Reference: o.ID,
		Amount:    o.Amount,
		Currency:  currency,
		Purpose:   "Order " + o.ID,
		Items:     items,
	}

	switch o.PaymentMethod {
	case MethodStripe:
		req.SuccessURL = s.frontendURL + "/verify?success=true&orderId=" + url.QueryEscape(o.ID)
		req.CancelURL = s.frontendURL + "/verify?success=false&orderId=" + url.QueryEscape(o.ID)
	case MethodPayrexx:
		req.SuccessURL = s.frontendURL + "/verify-payrexx?orderId=" + url.QueryEscape(o.ID)
		req.FailedURL = s.frontendURL + "/verify-payrexx?orderId=" + url.QueryEscape(o.ID)
		req.CancelURL = s.frontendURL + "/cart"
	}

	return req
}

func validateInput(in CreateOrderInput) error {
	if len(in.Items) == 0 || in.Amount <= 0 {
		return ErrInvalidOrderInput
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return ErrInvalidOrderInput
		}
	}
	return nil
}
