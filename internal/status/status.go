package status

import "errors"

var (
	// ErrInvalidRequest rejects caller input before anything reaches the provider.
	ErrInvalidRequest = errors.New("payment: invalid request")

	// ErrCredentialUnavailable means the Daraja consumer key/secret are not configured.
	ErrCredentialUnavailable = errors.New("mpesa: credentials not configured")

	// ErrCredentialExchangeFailed means the provider rejected the OAuth exchange
	// or was unreachable during it.
	ErrCredentialExchangeFailed = errors.New("mpesa: credential exchange failed")

	// ErrProviderRejected means the provider declined the STK push request.
	ErrProviderRejected = errors.New("mpesa: provider rejected request")

	// ErrProviderUnavailable is a transient provider failure during status
	// reconciliation; stored state is left unchanged.
	ErrProviderUnavailable = errors.New("mpesa: provider unavailable")

	// ErrTransactionNotFound means no transaction row exists for the tracking id.
	ErrTransactionNotFound = errors.New("payment: transaction not found")
)
