package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"chamapay/internal/status"
	"chamapay/models"
)

const (
	transactionsCollection  = "mpesa_transactions"
	tokensCollection        = "mpesa_tokens"
	notificationsCollection = "payment_notifications"
	contributionsCollection = "contributions"

	// tokenKey is the fixed key of the single credential slot.
	tokenKey = "current"
)

// Store implements the payment core's storage contract on top of
// PocketBase collections.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	collection, err := s.app.FindCollectionByNameOrId(transactionsCollection)
	if err != nil {
		return fmt.Errorf("insertTransaction: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("merchant_request_id", tx.MerchantRequestID)
	record.Set("checkout_request_id", tx.CheckoutRequestID)
	record.Set("phone_number", tx.PhoneNumber)
	record.Set("amount", tx.Amount)
	record.Set("account_reference", tx.AccountReference)
	record.Set("transaction_desc", tx.TransactionDesc)
	record.Set("status", tx.Status)
	record.Set("member_id", tx.MemberID)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("insertTransaction: %w", err)
	}

	tx.ID = record.Id
	return nil
}

func (s *Store) FindTransaction(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	record, err := s.app.FindFirstRecordByData(transactionsCollection, "checkout_request_id", checkoutRequestID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, status.ErrTransactionNotFound
	case err != nil:
		return nil, fmt.Errorf("findTransaction: %w", err)
	}

	return recordToTransaction(record), nil
}

// ApplyResult performs the pending-only terminal transition. It is a
// conditional update, not a read-modify-write: when the callback handler
// and the status reconciler race, whichever UPDATE runs second matches no
// row and reports applied=false.
func (s *Store) ApplyResult(ctx context.Context, checkoutRequestID string, res *models.TransactionResult) (bool, error) {
	result, err := s.app.DB().NewQuery(`
		UPDATE mpesa_transactions
		SET status = {:status},
			result_code = {:resultCode},
			result_desc = {:resultDesc},
			mpesa_receipt_number = {:receipt},
			transaction_date = {:transactionDate},
			callback_metadata = {:metadata},
			updated = {:updated}
		WHERE checkout_request_id = {:checkoutRequestID} AND status = 'pending'`).
		Bind(dbx.Params{
			"status":            res.Status,
			"resultCode":        res.ResultCode,
			"resultDesc":        res.ResultDesc,
			"receipt":           res.MpesaReceiptNumber,
			"transactionDate":   res.TransactionDate,
			"metadata":          res.CallbackMetadata,
			"updated":           nowString(),
			"checkoutRequestID": checkoutRequestID,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("applyResult: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("applyResult: rows affected: %w", err)
	}

	return rows == 1, nil
}

// ExpireStalePending fails pending rows older than the retention window.
// The status guard keeps it away from terminal rows.
func (s *Store) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(types.DefaultDateLayout)

	result, err := s.app.DB().NewQuery(`
		UPDATE mpesa_transactions
		SET status = 'failed',
			result_desc = 'Request expired without confirmation',
			updated = {:updated}
		WHERE status = 'pending' AND created < {:cutoff}`).
		Bind(dbx.Params{
			"updated": nowString(),
			"cutoff":  cutoff,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("expireStalePending: %w", err)
	}

	return result.RowsAffected()
}

func (s *Store) CurrentToken(ctx context.Context) (string, time.Time, error) {
	record, err := s.app.FindFirstRecordByData(tokensCollection, "key", tokenKey)
	if err != nil {
		// slot never written
		return "", time.Time{}, nil
	}

	return record.GetString("access_token"), record.GetDateTime("expires_at").Time(), nil
}

// SaveToken upserts the "current" credential slot. Last write wins.
func (s *Store) SaveToken(ctx context.Context, accessToken string, expiresAt time.Time) error {
	record, err := s.app.FindFirstRecordByData(tokensCollection, "key", tokenKey)
	if err != nil {
		collection, err := s.app.FindCollectionByNameOrId(tokensCollection)
		if err != nil {
			return fmt.Errorf("saveToken: %w", err)
		}
		record = core.NewRecord(collection)
		record.Set("key", tokenKey)
	}

	record.Set("access_token", accessToken)
	record.Set("expires_at", expiresAt.UTC().Format(types.DefaultDateLayout))

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("saveToken: %w", err)
	}
	return nil
}

func (s *Store) InsertNotification(ctx context.Context, n *models.PaymentNotification) error {
	collection, err := s.app.FindCollectionByNameOrId(notificationsCollection)
	if err != nil {
		return fmt.Errorf("insertNotification: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("checkout_request_id", n.CheckoutRequestID)
	record.Set("status", n.Status)
	record.Set("amount", n.Amount)
	record.Set("receipt_number", n.ReceiptNumber)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("insertNotification: %w", err)
	}
	return nil
}

func (s *Store) LatestNotification(ctx context.Context, checkoutRequestID string) (*models.PaymentNotification, error) {
	records, err := s.app.FindRecordsByFilter(
		notificationsCollection,
		"checkout_request_id = {:id}",
		"-created",
		1,
		0,
		dbx.Params{"id": checkoutRequestID},
	)
	if err != nil {
		return nil, fmt.Errorf("latestNotification: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	record := records[0]
	return &models.PaymentNotification{
		CheckoutRequestID: record.GetString("checkout_request_id"),
		Status:            record.GetString("status"),
		Amount:            int64(record.GetInt("amount")),
		ReceiptNumber:     record.GetString("receipt_number"),
		CreatedAt:         record.GetDateTime("created").Time(),
	}, nil
}

func (s *Store) InsertContribution(ctx context.Context, c *models.Contribution) error {
	collection, err := s.app.FindCollectionByNameOrId(contributionsCollection)
	if err != nil {
		return fmt.Errorf("insertContribution: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("member_id", c.MemberID)
	record.Set("amount", c.Amount)
	record.Set("mpesa_receipt_number", c.MpesaReceiptNumber)
	record.Set("transaction_id", c.TransactionID)
	record.Set("contribution_date", c.ContributionDate.UTC().Format(types.DefaultDateLayout))
	record.Set("status", c.Status)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("insertContribution: %w", err)
	}
	return nil
}

func recordToTransaction(record *core.Record) *models.Transaction {
	return &models.Transaction{
		ID:                 record.Id,
		MerchantRequestID:  record.GetString("merchant_request_id"),
		CheckoutRequestID:  record.GetString("checkout_request_id"),
		PhoneNumber:        record.GetString("phone_number"),
		Amount:             int64(record.GetInt("amount")),
		AccountReference:   record.GetString("account_reference"),
		TransactionDesc:    record.GetString("transaction_desc"),
		Status:             record.GetString("status"),
		ResultCode:         record.GetInt("result_code"),
		ResultDesc:         record.GetString("result_desc"),
		MpesaReceiptNumber: record.GetString("mpesa_receipt_number"),
		TransactionDate:    record.GetString("transaction_date"),
		MemberID:           record.GetString("member_id"),
		CreatedAt:          record.GetDateTime("created").Time(),
		UpdatedAt:          record.GetDateTime("updated").Time(),
	}
}

func nowString() string {
	return time.Now().UTC().Format(types.DefaultDateLayout)
}
