package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"chamapay/internal/services"
	"chamapay/internal/services/mpesa"
	"chamapay/internal/status"
	"chamapay/security"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	limiter        *security.RateLimiter

	pollInterval    time.Duration
	pollMaxAttempts int
}

func NewPaymentHandler(paymentService *services.PaymentService, limiter *security.RateLimiter, pollInterval time.Duration, pollMaxAttempts int) *PaymentHandler {
	return &PaymentHandler{
		paymentService:  paymentService,
		limiter:         limiter,
		pollInterval:    pollInterval,
		pollMaxAttempts: pollMaxAttempts,
	}
}

// STKPush - initiate a push payment prompt
func (h *PaymentHandler) STKPush(e *core.RequestEvent) error {
	var req services.InitiateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	resp, err := h.paymentService.InitiateSTKPush(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidRequest):
			return apis.NewBadRequestError(err.Error(), nil)
		case errors.Is(err, status.ErrCredentialUnavailable),
			errors.Is(err, status.ErrCredentialExchangeFailed),
			errors.Is(err, status.ErrProviderRejected),
			errors.Is(err, status.ErrProviderUnavailable):
			slog.Error("h.paymentService.InitiateSTKPush()", "phone", req.PhoneNumber, "error", err)
			return apis.NewApiError(http.StatusBadGateway, "Failed to initiate payment", nil)
		default:
			slog.Error("h.paymentService.InitiateSTKPush()", "phone", req.PhoneNumber, "error", err)
			return apis.NewInternalServerError("internal error", nil)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":             true,
		"checkoutRequestId":   resp.CheckoutRequestID,
		"merchantRequestId":   resp.MerchantRequestID,
		"responseDescription": resp.ResponseDescription,
		"customerMessage":     resp.CustomerMessage,
	})
}

// Checkout - initiate a push payment and wait for it to resolve. Runs the
// same submit-then-poll loop a native client would, so callers without a
// realtime channel get a single blocking call.
func (h *PaymentHandler) Checkout(e *core.RequestEvent) error {
	var req services.InitiateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	session := services.NewCheckoutSession(h.paymentService, h.paymentService, h.pollInterval, h.pollMaxAttempts)
	result, err := session.Submit(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidRequest):
			return apis.NewBadRequestError(err.Error(), nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return apis.NewApiError(http.StatusRequestTimeout, "Request cancelled", nil)
		default:
			slog.Error("session.Submit()", "phone", req.PhoneNumber, "error", err)
			return apis.NewApiError(http.StatusBadGateway, "Failed to complete payment", nil)
		}
	}

	return e.JSON(http.StatusOK, result)
}

// Callback - provider result notification. The provider is always told the
// callback landed, whatever happened internally, so it never retries a
// delivery it already made. For the same reason the route is exempt from
// rate limiting: an acked-but-unprocessed delivery would be a lost terminal
// result, and the provider sends from a small shared IP range anyway.
func (h *PaymentHandler) Callback(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	payload, err := io.ReadAll(e.Request.Body)
	if err != nil {
		slog.Error("callback: read body", "error", err)
		return h.acknowledge(e)
	}

	if err := h.paymentService.HandleCallback(ctx, payload); err != nil {
		slog.Error("h.paymentService.HandleCallback()", "error", err)
	}

	return h.acknowledge(e)
}

func (h *PaymentHandler) acknowledge(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Callback processed successfully",
	})
}

// Status - transaction snapshot for one checkout request id
func (h *PaymentHandler) Status(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	if !h.limiter.Allow(ctx, "status", e.RealIP()) {
		return apis.NewApiError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
	}

	checkoutRequestID := e.Request.PathValue("checkoutRequestId")
	if checkoutRequestID == "" {
		return apis.NewBadRequestError("checkoutRequestId is required", nil)
	}

	snapshot, err := h.paymentService.GetStatus(ctx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, status.ErrTransactionNotFound) {
			return apis.NewNotFoundError("Transaction not found", nil)
		}
		slog.Error("h.paymentService.GetStatus()", "checkout_request_id", checkoutRequestID, "error", err)
		return apis.NewInternalServerError("internal error", nil)
	}

	return e.JSON(http.StatusOK, snapshot)
}

// SimulateCallback - feed a synthetic provider callback through the real
// handler path (for local testing without a provider)
func (h *PaymentHandler) SimulateCallback(e *core.RequestEvent) error {
	var req struct {
		CheckoutRequestID string          `json:"checkout_request_id"`
		MerchantRequestID string          `json:"merchant_request_id"`
		ResultCode        int             `json:"result_code"`
		ResultDesc        string          `json:"result_desc"`
		Amount            decimal.Decimal `json:"amount"`
		ReceiptNumber     string          `json:"receipt_number"`
		PhoneNumber       string          `json:"phone_number"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	env := mpesa.CallbackEnvelope{}
	env.Body.StkCallback.MerchantRequestID = req.MerchantRequestID
	env.Body.StkCallback.CheckoutRequestID = req.CheckoutRequestID
	env.Body.StkCallback.ResultCode = req.ResultCode
	env.Body.StkCallback.ResultDesc = req.ResultDesc
	if req.ResultCode == 0 {
		env.Body.StkCallback.CallbackMetadata.Item = []mpesa.MetadataItem{
			{Name: "Amount", Value: req.Amount.InexactFloat64()},
			{Name: "MpesaReceiptNumber", Value: req.ReceiptNumber},
			{Name: "PhoneNumber", Value: req.PhoneNumber},
		}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return apis.NewInternalServerError("internal error", err)
	}

	if err := h.paymentService.HandleCallback(ctx, payload); err != nil {
		slog.Error("h.paymentService.HandleCallback()", "error", err)
		return apis.NewInternalServerError("internal error", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Callback simulation processed"})
}
