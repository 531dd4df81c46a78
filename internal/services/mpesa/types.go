package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type (
	stkPushRequest struct {
		BusinessShortCode string `json:"BusinessShortCode"`
		Password          string `json:"Password"`
		Timestamp         string `json:"Timestamp"`
		TransactionType   string `json:"TransactionType"`
		Amount            int64  `json:"Amount"`
		PartyA            string `json:"PartyA"`
		PartyB            string `json:"PartyB"`
		PhoneNumber       string `json:"PhoneNumber"`
		CallBackURL       string `json:"CallBackURL"`
		AccountReference  string `json:"AccountReference"`
		TransactionDesc   string `json:"TransactionDesc"`
	}

	STKPushResponse struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}

	stkQueryRequest struct {
		BusinessShortCode string `json:"BusinessShortCode"`
		Password          string `json:"Password"`
		Timestamp         string `json:"Timestamp"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
	}

	// STKQueryResponse is the synchronous query reply. ResultCode arrives as
	// a string ("0" on success).
	STKQueryResponse struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResultCode          string `json:"ResultCode"`
		ResultDesc          string `json:"ResultDesc"`
	}
)

type (
	// CallbackEnvelope is the nested shape Daraja POSTs to the callback URL.
	CallbackEnvelope struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string `json:"MerchantRequestID"`
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        int    `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []MetadataItem `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}

	// MetadataItem is one entry of the unordered key/value metadata list.
	MetadataItem struct {
		Name  string `json:"Name"`
		Value any    `json:"Value"`
	}

	// CallbackResult is the flattened, typed view of a callback.
	CallbackResult struct {
		MerchantRequestID  string
		CheckoutRequestID  string
		ResultCode         int
		ResultDesc         string
		Amount             int64
		MpesaReceiptNumber string
		TransactionDate    string
		PhoneNumber        string
	}
)

var ErrInvalidCallback = errors.New("mpesa: invalid callback structure")

// ParseCallback extracts the result and the success metadata from a raw
// callback payload. Metadata items are matched by name; unknown names are
// ignored.
func ParseCallback(payload []byte) (*CallbackResult, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("parseCallback: json.Unmarshal: %w", err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, ErrInvalidCallback
	}

	result := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	if cb.ResultCode != 0 {
		return result, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			result.Amount = metadataAmount(item.Value)
		case "MpesaReceiptNumber":
			result.MpesaReceiptNumber = metadataString(item.Value)
		case "TransactionDate":
			result.TransactionDate = metadataString(item.Value)
		case "PhoneNumber":
			result.PhoneNumber = metadataString(item.Value)
		}
	}

	return result, nil
}

func metadataAmount(v any) int64 {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value).Round(0).IntPart()
	case string:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return 0
		}
		return d.Round(0).IntPart()
	default:
		return 0
	}
}

// metadataString renders a metadata value as a string. Numeric values like
// TransactionDate (20191219102115) must not pick up an exponent on the way.
func metadataString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return decimal.NewFromFloat(value).String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
