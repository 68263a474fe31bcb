package order

import "time"

type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "COD"
	MethodStripe  PaymentMethod = "STRIPE"
	MethodPayrexx PaymentMethod = "PAYREXX"
)

// PaymentState drives the reconciliation state machine.
// PENDING is the only state a reconciliation may transition out of;
// PAID, FAILED and CANCELLED are terminal. UNPAID marks cash-on-delivery
// orders, which settle outside the gateway paths entirely.
type PaymentState string

const (
	StateUnpaid    PaymentState = "UNPAID"
	StatePending   PaymentState = "PENDING"
	StatePaid      PaymentState = "PAID"
	StateFailed    PaymentState = "FAILED"
	StateCancelled PaymentState = "CANCELLED"
)

// IsTerminal reports whether no further payment transition is permitted.
func (s PaymentState) IsTerminal() bool {
	return s == StatePaid || s == StateFailed || s == StateCancelled
}

// DefaultStatus is the initial fulfillment status of every order.
const DefaultStatus = "Order Placed"

type OrderItem struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type Order struct {
	ID            string
	UserID        uint
	Items         []OrderItem
	Amount        int64
	Address       Address
	PaymentMethod PaymentMethod
	PaymentState  PaymentState
	ExternalRef   *string
	ExternalTxnID *string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
