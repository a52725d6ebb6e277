package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes the two ledger record lifecycles.
const (
	KindTransaction = "transaction"
	KindPaymentLink = "payment_link"
)

// Transaction is a single purchase attempt against the provider.
// TranID is provider-visible, at most 20 characters, generated once per
// logical attempt and stable across retries of that attempt.
type Transaction struct {
	TranID        string          `json:"tran_id"`
	OrderRef      string          `json:"order_ref"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentOption string          `json:"payment_option"`
	State         string          `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Attempts      int             `json:"attempts"`
}

// PaymentLink is a provider-hosted payment page with its own lifecycle
// but the same state taxonomy as Transaction.
type PaymentLink struct {
	LinkID    string          `json:"link_id"`
	OrderRef  string          `json:"order_ref"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	Customer  Customer        `json:"customer,omitempty"`
}

// Customer is the payer contact data forwarded to the provider.
type Customer struct {
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}
