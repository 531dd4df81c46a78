package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"chamapay/internal/status"
	"chamapay/monitoring"
)

// Authenticate performs the Daraja OAuth client-credentials exchange and
// returns the access token with the provider-reported time to live.
func (c *Client) Authenticate(ctx context.Context) (string, time.Duration, error) {
	if c.consumerKey == "" || c.consumerSecret == "" {
		return "", 0, status.ErrCredentialUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+authPath, nil)
	if err != nil {
		return "", 0, fmt.Errorf("authenticate: http.NewRequestWithContext: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, "auth")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", status.ErrCredentialExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%w: resp.StatusCode: %d, resp.Body: %s", status.ErrCredentialExchangeFailed, resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", 0, fmt.Errorf("%w: json.Decode: %v", status.ErrCredentialExchangeFailed, err)
	}

	seconds, err := strconv.Atoi(reply.ExpiresIn)
	if err != nil || seconds <= 0 {
		// Daraja documents 3599s; fall back to it when the reply is odd.
		seconds = 3599
	}

	return reply.AccessToken, time.Duration(seconds) * time.Second, nil
}

// STKPushParams carries an initiation request to the push endpoint. Phone
// must already be in canonical 254 form.
type STKPushParams struct {
	Phone            string
	Amount           int64
	AccountReference string
	TransactionDesc  string
}

// STKPush submits a push-payment prompt to the payer's device.
func (c *Client) STKPush(ctx context.Context, accessToken string, p *STKPushParams) (*STKPushResponse, error) {
	timestamp := Timestamp(time.Now())

	form := &stkPushRequest{
		BusinessShortCode: c.shortCode,
		Password:          Password(c.shortCode, c.passKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            p.Amount,
		PartyA:            p.Phone,
		PartyB:            c.shortCode,
		PhoneNumber:       p.Phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  p.AccountReference,
		TransactionDesc:   p.TransactionDesc,
	}

	b, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("stkPush: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stkPushPath, bytes.NewBuffer(b))
	if err != nil {
		return nil, fmt.Errorf("stkPush: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, "stkpush")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: resp.StatusCode: %d, resp.Body: %s", status.ErrProviderRejected, resp.StatusCode, rbody)
	}

	var reply STKPushResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("stkPush: json.Decode: %w", err)
	}

	return &reply, nil
}

// STKQuery asks Daraja for the outcome of an earlier push. A fresh
// timestamp/password pair is derived per call; Daraja answers with a
// non-200 while the payer prompt is still open, which surfaces here as
// ErrProviderUnavailable.
func (c *Client) STKQuery(ctx context.Context, accessToken, checkoutRequestID string) (*STKQueryResponse, error) {
	timestamp := Timestamp(time.Now())

	form := &stkQueryRequest{
		BusinessShortCode: c.shortCode,
		Password:          Password(c.shortCode, c.passKey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	b, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("stkQuery: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stkQueryPath, bytes.NewBuffer(b))
	if err != nil {
		return nil, fmt.Errorf("stkQuery: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, "stkquery")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: resp.StatusCode: %d, resp.Body: %s", status.ErrProviderUnavailable, resp.StatusCode, rbody)
	}

	var reply STKQueryResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("stkQuery: json.Decode: %w", err)
	}

	return &reply, nil
}

// do runs one provider round trip through the circuit breaker and records
// its duration.
func (c *Client) do(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	result, err := c.cb.Execute(ctx, func() (any, error) {
		return c.hc.Do(req)
	})
	monitoring.ObserveProviderRequest(endpoint, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}
