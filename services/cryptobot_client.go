package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"gift-casino-backend/config"
)

// CryptoBotClient talks to the Crypto Pay API (pay.crypt.bot). It is both
// the invoice factory for the create-invoice endpoint and the verifier for
// the cryptobot reconciliation sweep.
type CryptoBotClient struct {
	BaseURL    string
	Token      string
	Asset      string
	HTTPClient *http.Client
}

func NewCryptoBotClient(cfg *config.Config) *CryptoBotClient {
	return &CryptoBotClient{
		BaseURL: cfg.CryptoBotAPIURL,
		Token:   cfg.CryptoBotToken,
		Asset:   cfg.CryptoBotAsset,
		HTTPClient: &http.Client{
			Timeout: cfg.VerifyTimeout,
		},
	}
}

// Invoice is the slice of the Crypto Pay invoice object we care about.
// Amount comes back as a string from the API.
type Invoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"` // active | paid | expired
	Amount    string `json:"amount"`
	PayURL    string `json:"pay_url"`
}

// CreateInvoice asks Crypto Pay for a new invoice of the configured asset.
func (c *CryptoBotClient) CreateInvoice(ctx context.Context, amount float64) (*Invoice, error) {
	payload := map[string]interface{}{
		"asset":  c.Asset,
		"amount": strconv.FormatFloat(amount, 'f', -1, 64),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.Token)

	var out struct {
		Ok     bool    `json:"ok"`
		Result Invoice `json:"result"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Ok {
		return nil, fmt.Errorf("crypto pay rejected createInvoice")
	}
	return &out.Result, nil
}

// GetInvoice fetches one invoice by id. A nil invoice with nil error means
// the provider states the invoice does not exist.
func (c *CryptoBotClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	u, err := url.Parse(c.BaseURL + "/getInvoices")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("invoice_ids", invoiceID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.Token)

	var out struct {
		Ok     bool `json:"ok"`
		Result struct {
			Items []Invoice `json:"items"`
		} `json:"result"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Ok {
		return nil, fmt.Errorf("crypto pay rejected getInvoices")
	}
	if len(out.Result.Items) == 0 {
		return nil, nil
	}
	return &out.Result.Items[0], nil
}

// Verify implements PaymentVerifier. Provider status "paid" maps to paid,
// "expired" and a missing invoice map to not_found, anything else stays
// pending. Transport errors are returned as-is so the ledger entry is left
// untouched.
func (c *CryptoBotClient) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	inv, err := c.GetInvoice(ctx, reference)
	if err != nil {
		return VerifyResult{Status: VerifyPending}, err
	}
	if inv == nil {
		return VerifyResult{Status: VerifyNotFound}, nil
	}
	switch inv.Status {
	case "paid":
		amount, _ := strconv.ParseFloat(inv.Amount, 64)
		return VerifyResult{Status: VerifyPaid, Amount: amount}, nil
	case "expired":
		return VerifyResult{Status: VerifyNotFound}, nil
	default:
		return VerifyResult{Status: VerifyPending}, nil
	}
}

func (c *CryptoBotClient) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call crypto pay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("crypto pay returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode crypto pay response: %w", err)
	}
	return nil
}

var _ PaymentVerifier = (*CryptoBotClient)(nil)
