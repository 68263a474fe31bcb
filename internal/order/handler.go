package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"vestra-be/internal/utils"
)

// Handler exposes the order endpoints. Authentication and rate limiting are
// applied by middleware; reconciliation signals arriving as redirect returns
// are routed here by payment method.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Items   []OrderItem `json:"items"`
	Amount  int64       `json:"amount"`
	Address Address     `json:"address"`
}

type verifyStripeRequest struct {
	OrderID string `json:"orderId"`
	Success string `json:"success"`
}

type verifyPayrexxRequest struct {
	OrderID string `json:"orderId"`
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PlaceOrder places a cash-on-delivery order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, MethodCOD)
}

// PlaceOrderStripe places an order paid through the hosted checkout.
func (h *Handler) PlaceOrderStripe(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, MethodStripe)
}

// PlaceOrderPayrexx places an order paid through the QR/link gateway.
func (h *Handler) PlaceOrderPayrexx(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, MethodPayrexx)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, method PaymentMethod) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "not authorized", http.StatusUnauthorized)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), userID, CreateOrderInput{
		Items:   req.Items,
		Amount:  req.Amount,
		Address: req.Address,
		Method:  method,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch method {
	case MethodStripe:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"orderId":     result.Order.ID,
			"session_url": result.PaymentURL,
		})
	case MethodPayrexx:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"orderId": result.Order.ID,
			"payment": map[string]interface{}{
				"gateway_id": utils.PtrString(result.Order.ExternalRef),
				"link":       result.PaymentURL,
				"qr_code":    result.QRCode,
			},
		})
	default:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"orderId": result.Order.ID,
			"message": "Order Placed",
		})
	}
}

// VerifyStripe handles the hosted-checkout redirect return.
func (h *Handler) VerifyStripe(w http.ResponseWriter, r *http.Request) {
	var req verifyStripeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		utils.WriteJSONError(w, "orderId is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.VerifyCheckout(r.Context(), req.OrderID, req.Success == "true")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeVerifyResult(w, result)
}

// VerifyPayrexx polls the authoritative gateway status for an order.
func (h *Handler) VerifyPayrexx(w http.ResponseWriter, r *http.Request) {
	var req verifyPayrexxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		utils.WriteJSONError(w, "orderId is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.VerifyGateway(r.Context(), req.OrderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeVerifyResult(w, result)
}

// UserOrders lists the calling user's orders.
func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "not authorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.svc.GetUserOrders(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  toOrderViews(orders),
	})
}

// AllOrders lists every order for the admin panel.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.GetAllOrders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  toOrderViews(orders),
	})
}

// UpdateStatus updates the fulfillment status from the admin panel.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.UpdateStatus(r.Context(), req.OrderID, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Status Updated",
	})
}

func writeVerifyResult(w http.ResponseWriter, result *VerifyResult) {
	switch result.State {
	case StatePaid:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"orderId": result.OrderID,
			"state":   result.State,
		})
	case StatePending:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"orderId": result.OrderID,
			"state":   result.State,
			"message": "payment not confirmed yet",
		})
	default:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"orderId": result.OrderID,
			"state":   result.State,
		})
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidOrderInput), errors.Is(err, ErrInvalidPaymentMethod):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnauthorized):
		utils.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
	default:
		utils.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

type orderView struct {
	ID            string        `json:"id"`
	UserID        uint          `json:"user_id"`
	Items         []OrderItem   `json:"items"`
	Amount        int64         `json:"amount"`
	Address       Address       `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentState  PaymentState  `json:"payment_state"`
	ExternalRef   *string       `json:"external_ref,omitempty"`
	Status        string        `json:"status"`
	CreatedAt     string        `json:"created_at"`
}

func toOrderViews(orders []*Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ID:            o.ID,
			UserID:        o.UserID,
			Items:         o.Items,
			Amount:        o.Amount,
			Address:       o.Address,
			PaymentMethod: o.PaymentMethod,
			PaymentState:  o.PaymentState,
			ExternalRef:   o.ExternalRef,
			Status:        o.Status,
			CreatedAt:     o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return views
}
