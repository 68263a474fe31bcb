package payment

import "context"

// TxnState is the normalized provider-side state of one payment attempt.
type TxnState string

const (
	TxnPending   TxnState = "PENDING"
	TxnConfirmed TxnState = "CONFIRMED"
	TxnFailed    TxnState = "FAILED"
	TxnCancelled TxnState = "CANCELLED"
)

type TransactionItem struct {
	Name      string
	Quantity  int
	UnitPrice int64
}

// TransactionRequest carries the allow-listed fields a gateway call may
// forward. Anything else a caller knows about an order stays behind this
// boundary.
type TransactionRequest struct {
	Reference  string
	Amount     int64
	Currency   string
	Purpose    string
	SuccessURL string
	FailedURL  string
	CancelURL  string
	Items      []TransactionItem
}

type TransactionResponse struct {
	ExternalRef string
	PaymentURL  string
	QRCode      string
}

type TransactionStatus struct {
	State         TxnState
	TransactionID string
}

// Gateway is implemented once per provider family.
type Gateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*TransactionResponse, error)
	GetTransactionStatus(ctx context.Context, externalRef string) (*TransactionStatus, error)
}
