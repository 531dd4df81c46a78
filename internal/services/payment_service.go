package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"chamapay/internal/services/mpesa"
	"chamapay/internal/status"
	"chamapay/models"
	"chamapay/monitoring"
	"chamapay/utils"
)

const (
	defaultAccountReference = "ChamaSmart"
	defaultTransactionDesc  = "Chama Contribution"

	// NotificationChannel carries realtime completion events.
	NotificationChannel = "payment-notifications"
)

// TransactionStore is the CRUD contract the payment core needs from
// storage. ApplyResult must be conditional on the row still being pending,
// so the callback handler and the status reconciler can race safely.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	FindTransaction(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	ApplyResult(ctx context.Context, checkoutRequestID string, res *models.TransactionResult) (applied bool, err error)
	InsertNotification(ctx context.Context, n *models.PaymentNotification) error
	LatestNotification(ctx context.Context, checkoutRequestID string) (*models.PaymentNotification, error)
	InsertContribution(ctx context.Context, c *models.Contribution) error
}

// MpesaAPI is the Daraja surface the service calls.
type MpesaAPI interface {
	STKPush(ctx context.Context, accessToken string, p *mpesa.STKPushParams) (*mpesa.STKPushResponse, error)
	STKQuery(ctx context.Context, accessToken, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
}

// Publisher broadcasts realtime payment events. Implementations are
// best-effort; failures never affect the payment outcome.
type Publisher interface {
	PublishPaymentEvent(channel string, message map[string]any)
}

type PaymentService struct {
	store     TransactionStore
	client    MpesaAPI
	tokens    *TokenCache
	publisher Publisher

	// freshnessWindow bounds how long after initiation a status query
	// still re-queries the provider for a pending row.
	freshnessWindow time.Duration
}

func NewPaymentService(store TransactionStore, client MpesaAPI, tokens *TokenCache, publisher Publisher, freshnessWindow time.Duration) *PaymentService {
	if freshnessWindow <= 0 {
		freshnessWindow = 2 * time.Minute
	}
	return &PaymentService{
		store:           store,
		client:          client,
		tokens:          tokens,
		publisher:       publisher,
		freshnessWindow: freshnessWindow,
	}
}

type InitiateRequest struct {
	PhoneNumber      string          `json:"phoneNumber"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"accountReference"`
	TransactionDesc  string          `json:"transactionDesc"`
	MemberID         string          `json:"memberId"`
}

type InitiateResponse struct {
	CheckoutRequestID   string `json:"checkoutRequestId"`
	MerchantRequestID   string `json:"merchantRequestId"`
	ResponseDescription string `json:"responseDescription"`
	CustomerMessage     string `json:"customerMessage"`
}

// InitiateSTKPush submits a push-payment prompt and records a pending
// transaction under the provider-issued checkout request id. It returns as
// soon as the provider accepts the request; confirmation arrives later via
// callback or reconciliation.
func (s *PaymentService) InitiateSTKPush(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	if req.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number is required", status.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount must be a positive whole number", status.ErrInvalidRequest)
	}

	amount := req.Amount.IntPart()
	phone := mpesa.NormalizePhone(req.PhoneNumber)

	reference := req.AccountReference
	if reference == "" {
		if code, err := utils.GenerateCode(4); err == nil {
			reference = fmt.Sprintf("%s-%s", defaultAccountReference, code)
		} else {
			reference = defaultAccountReference
		}
	}
	description := req.TransactionDesc
	if description == "" {
		description = defaultTransactionDesc
	}

	accessToken, err := s.tokens.Acquire(ctx)
	if err != nil {
		monitoring.TrackSTKPush("credential_error")
		return nil, fmt.Errorf("initiate: %w", err)
	}

	reply, err := s.client.STKPush(ctx, accessToken, &mpesa.STKPushParams{
		Phone:            phone,
		Amount:           amount,
		AccountReference: reference,
		TransactionDesc:  description,
	})
	if err != nil {
		monitoring.TrackSTKPush("rejected")
		return nil, fmt.Errorf("initiate: %w", err)
	}
	monitoring.TrackSTKPush("accepted")

	now := time.Now()
	tx := &models.Transaction{
		MerchantRequestID: reply.MerchantRequestID,
		CheckoutRequestID: reply.CheckoutRequestID,
		PhoneNumber:       phone,
		Amount:            amount,
		AccountReference:  reference,
		TransactionDesc:   description,
		Status:            models.StatusPending,
		MemberID:          req.MemberID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		// The prompt already reached the payer; failing the call now would
		// mislead the caller. The status path reports NotFound for this row.
		slog.Error("initiate: persist pending transaction",
			"checkout_request_id", reply.CheckoutRequestID, "error", err)
	}

	return &InitiateResponse{
		CheckoutRequestID:   reply.CheckoutRequestID,
		MerchantRequestID:   reply.MerchantRequestID,
		ResponseDescription: reply.ResponseDescription,
		CustomerMessage:     reply.CustomerMessage,
	}, nil
}

// HandleCallback applies the provider's asynchronous result. The caller
// (the HTTP handler) acknowledges the provider regardless of the returned
// error, so a callback is never retried because of an internal fault.
func (s *PaymentService) HandleCallback(ctx context.Context, payload []byte) error {
	result, err := mpesa.ParseCallback(payload)
	if err != nil {
		monitoring.TrackCallback("malformed")
		return fmt.Errorf("handleCallback: %w", err)
	}

	newStatus := models.StatusFailed
	if result.ResultCode == 0 {
		newStatus = models.StatusCompleted
	}

	metadata, _ := json.Marshal(result)
	applied, err := s.store.ApplyResult(ctx, result.CheckoutRequestID, &models.TransactionResult{
		Status:             newStatus,
		ResultCode:         result.ResultCode,
		ResultDesc:         result.ResultDesc,
		MpesaReceiptNumber: result.MpesaReceiptNumber,
		TransactionDate:    result.TransactionDate,
		CallbackMetadata:   string(metadata),
	})
	if err != nil {
		monitoring.TrackCallback("error")
		return fmt.Errorf("handleCallback: apply result: %w", err)
	}

	if !applied {
		// Either a duplicate delivery for an already-terminal row, or an
		// unknown checkout request id. Both are safe no-ops.
		tx, err := s.store.FindTransaction(ctx, result.CheckoutRequestID)
		switch {
		case errors.Is(err, status.ErrTransactionNotFound):
			monitoring.TrackCallback("unknown")
			slog.Warn("handleCallback: no transaction for callback",
				"checkout_request_id", result.CheckoutRequestID)
		case err != nil:
			monitoring.TrackCallback("error")
			slog.Error("handleCallback: classify unapplied callback",
				"checkout_request_id", result.CheckoutRequestID, "error", err)
		case models.IsTerminal(tx.Status):
			monitoring.TrackCallback("duplicate")
		}
		return nil
	}

	monitoring.TrackCallback(newStatus)
	if newStatus == models.StatusCompleted {
		s.completionSideEffects(ctx, result)
	}

	return nil
}

// completionSideEffects records the ledger entry and the notification for a
// transaction that just completed. Every step is best-effort: the terminal
// transition already happened.
func (s *PaymentService) completionSideEffects(ctx context.Context, result *mpesa.CallbackResult) {
	tx, err := s.store.FindTransaction(ctx, result.CheckoutRequestID)
	if err != nil {
		slog.Error("handleCallback: reload completed transaction",
			"checkout_request_id", result.CheckoutRequestID, "error", err)
		return
	}

	amount := result.Amount
	if amount == 0 {
		amount = tx.Amount
	}

	if tx.MemberID != "" {
		err := s.store.InsertContribution(ctx, &models.Contribution{
			MemberID:           tx.MemberID,
			Amount:             amount,
			MpesaReceiptNumber: result.MpesaReceiptNumber,
			TransactionID:      tx.ID,
			ContributionDate:   time.Now(),
			Status:             "confirmed",
		})
		if err != nil {
			slog.Error("handleCallback: record contribution",
				"checkout_request_id", result.CheckoutRequestID, "error", err)
		}
	}

	err = s.store.InsertNotification(ctx, &models.PaymentNotification{
		CheckoutRequestID: result.CheckoutRequestID,
		Status:            models.StatusCompleted,
		Amount:            amount,
		ReceiptNumber:     result.MpesaReceiptNumber,
		CreatedAt:         time.Now(),
	})
	if err != nil {
		slog.Error("handleCallback: record notification",
			"checkout_request_id", result.CheckoutRequestID, "error", err)
	}

	if s.publisher != nil {
		s.publisher.PublishPaymentEvent(NotificationChannel, map[string]any{
			"type":                "payment_completed",
			"checkout_request_id": result.CheckoutRequestID,
			"amount":              amount,
			"receipt_number":      result.MpesaReceiptNumber,
		})
	}
}

// GetStatus answers "what happened to transaction X". For a pending row
// still inside the freshness window it re-queries the provider to cover a
// delayed or dropped callback; a provider outage leaves the stored state
// untouched.
func (s *PaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*models.TransactionSnapshot, error) {
	tx, err := s.store.FindTransaction(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("getStatus: %w", err)
	}

	refreshed := false
	if tx.Status == models.StatusPending && time.Since(tx.CreatedAt) < s.freshnessWindow {
		refreshed = true
		if err := s.reconcile(ctx, tx); err != nil {
			slog.Warn("getStatus: provider re-query",
				"checkout_request_id", checkoutRequestID, "error", err)
		}
	}
	monitoring.TrackStatusQuery(refreshed)

	notification, err := s.store.LatestNotification(ctx, checkoutRequestID)
	if err != nil {
		slog.Warn("getStatus: latest notification",
			"checkout_request_id", checkoutRequestID, "error", err)
		notification = nil
	}

	return &models.TransactionSnapshot{
		Status:             tx.Status,
		ResultCode:         tx.ResultCode,
		ResultDesc:         tx.ResultDesc,
		Amount:             tx.Amount,
		PhoneNumber:        tx.PhoneNumber,
		MpesaReceiptNumber: tx.MpesaReceiptNumber,
		TransactionDate:    tx.TransactionDate,
		Notification:       notification,
	}, nil
}

// reconcile pulls the provider's view of a pending transaction and applies
// a definitive result under the same pending-only guard the callback path
// uses. Whichever writer arrives second is a no-op.
func (s *PaymentService) reconcile(ctx context.Context, tx *models.Transaction) error {
	accessToken, err := s.tokens.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	reply, err := s.client.STKQuery(ctx, accessToken, tx.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if reply.ResultCode == "" {
		// no definitive result yet
		return nil
	}
	code, err := strconv.Atoi(reply.ResultCode)
	if err != nil {
		return fmt.Errorf("reconcile: result code %q: %w", reply.ResultCode, err)
	}

	newStatus := models.StatusFailed
	if code == 0 {
		newStatus = models.StatusCompleted
	}

	applied, err := s.store.ApplyResult(ctx, tx.CheckoutRequestID, &models.TransactionResult{
		Status:     newStatus,
		ResultCode: code,
		ResultDesc: reply.ResultDesc,
	})
	if err != nil {
		return fmt.Errorf("reconcile: apply result: %w", err)
	}

	if applied {
		tx.Status = newStatus
		tx.ResultCode = code
		tx.ResultDesc = reply.ResultDesc
		return nil
	}

	// The callback won the race. Reload so the snapshot reflects its write.
	fresh, err := s.store.FindTransaction(ctx, tx.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("reconcile: reload after lost race: %w", err)
	}
	*tx = *fresh
	return nil
}
