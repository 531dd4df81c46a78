package models

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// IsTerminal reports whether a transaction status permits no further transition.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Transaction is one STK push attempt, keyed by the provider-issued
// checkout request id.
type Transaction struct {
	ID                string    `json:"id,omitempty"`
	MerchantRequestID string    `json:"merchant_request_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	PhoneNumber       string    `json:"phone_number"`
	Amount            int64     `json:"amount"`
	AccountReference  string    `json:"account_reference"`
	TransactionDesc   string    `json:"transaction_desc"`
	Status            string    `json:"status"` // pending, completed, failed
	ResultCode        int       `json:"result_code"`
	ResultDesc        string    `json:"result_desc"`
	MpesaReceiptNumber string   `json:"mpesa_receipt_number,omitempty"`
	TransactionDate   string    `json:"transaction_date,omitempty"`
	MemberID          string    `json:"member_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TransactionResult is a terminal outcome to apply to a pending transaction.
type TransactionResult struct {
	Status             string `json:"status"` // completed or failed
	ResultCode         int    `json:"result_code"`
	ResultDesc         string `json:"result_desc"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	TransactionDate    string `json:"transaction_date,omitempty"`
	CallbackMetadata   string `json:"callback_metadata,omitempty"`
}

// PaymentNotification is an append-only completion record. It lets a
// concurrent status poll observe completion even while the transaction
// row update is still in flight.
type PaymentNotification struct {
	CheckoutRequestID string    `json:"checkout_request_id"`
	Status            string    `json:"status"`
	Amount            int64     `json:"amount"`
	ReceiptNumber     string    `json:"receipt_number"`
	CreatedAt         time.Time `json:"created_at"`
}

// Contribution is the ledger entry written when a completed transaction
// is attributable to a group member.
type Contribution struct {
	MemberID           string    `json:"member_id"`
	Amount             int64     `json:"amount"`
	MpesaReceiptNumber string    `json:"mpesa_receipt_number"`
	TransactionID      string    `json:"transaction_id"`
	ContributionDate   time.Time `json:"contribution_date"`
	Status             string    `json:"status"` // confirmed
}

// TransactionSnapshot is what a status query returns. The transaction row
// is the source of truth; Notification is corroborating evidence only.
type TransactionSnapshot struct {
	Status             string               `json:"status"`
	ResultCode         int                  `json:"resultCode"`
	ResultDesc         string               `json:"resultDesc"`
	Amount             int64                `json:"amount"`
	PhoneNumber        string               `json:"phoneNumber"`
	MpesaReceiptNumber string               `json:"mpesaReceiptNumber,omitempty"`
	TransactionDate    string               `json:"transactionDate,omitempty"`
	Notification       *PaymentNotification `json:"notification,omitempty"`
}
