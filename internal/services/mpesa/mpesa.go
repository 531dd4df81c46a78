package mpesa

import (
	"net/http"
	"time"

	"chamapay/utils"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	authPath     = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

type (
	Config struct {
		// Env selects the Daraja environment, "sandbox" or "production".
		Env string `json:"env" mapstructure:"env"`

		ShortCode string `json:"short_code" mapstructure:"short_code"`
		PassKey   string `json:"pass_key" mapstructure:"pass_key"`

		ConsumerKey    string `json:"consumer_key" mapstructure:"consumer_key"`
		ConsumerSecret string `json:"consumer_secret" mapstructure:"consumer_secret"`

		// CallbackURL is where Daraja delivers the asynchronous STK result.
		CallbackURL string `json:"callback_url" mapstructure:"callback_url"`
	}

	Client struct {
		baseURL string

		shortCode string
		passKey   string

		consumerKey    string
		consumerSecret string

		callbackURL string

		// hc is the http client.
		hc *http.Client

		// cb guards provider round trips.
		cb *utils.CircuitBreaker
	}
)

// New creates a new Daraja client.
func New(cfg *Config) *Client {
	baseURL := sandboxBaseURL
	if cfg.Env == "production" {
		baseURL = productionBaseURL
	}

	return &Client{
		baseURL:        baseURL,
		shortCode:      cfg.ShortCode,
		passKey:        cfg.PassKey,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		callbackURL:    cfg.CallbackURL,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},

		cb: utils.NewCircuitBreaker("mpesa"),
	}
}

// WithBaseURL overrides the provider base URL. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}
