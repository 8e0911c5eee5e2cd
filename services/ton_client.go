package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"gift-casino-backend/config"
)

// TonClient checks claimed TON deposits against a toncenter-style indexer.
// It lists recent transactions into the configured receiving wallet and
// matches them by transaction hash.
type TonClient struct {
	BaseURL    string
	APIKey     string
	WalletAddr string
	HTTPClient *http.Client

	// How many recent transactions to scan per lookup.
	Limit int
}

func NewTonClient(cfg *config.Config) *TonClient {
	return &TonClient{
		BaseURL:    cfg.TonAPIURL,
		APIKey:     cfg.TonAPIKey,
		WalletAddr: cfg.TonWalletAddr,
		HTTPClient: &http.Client{
			Timeout: cfg.VerifyTimeout,
		},
		Limit: 100,
	}
}

type tonTransaction struct {
	TransactionID struct {
		Hash string `json:"hash"`
	} `json:"transaction_id"`
	InMsg struct {
		Source string `json:"source"`
		Value  string `json:"value"` // nanotons, as a string
	} `json:"in_msg"`
}

// Verify implements PaymentVerifier. A hash present among the wallet's
// recent incoming transactions is paid; a successful indexer response
// without the hash is not_found (the claim counts against its retry budget,
// since transfers land within seconds and an unseen hash after many sweeps
// was never sent). Any transport or indexer failure is returned as an error
// so the caller keeps the entry pending: an outage must not read as
// non-payment.
func (t *TonClient) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	u, err := url.Parse(t.BaseURL + "/getTransactions")
	if err != nil {
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("address", t.WalletAddr)
	q.Set("limit", strconv.Itoa(t.Limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("failed to create request: %w", err)
	}
	if t.APIKey != "" {
		req.Header.Set("X-API-Key", t.APIKey)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("failed to call ton indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("ton indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Ok     bool             `json:"ok"`
		Result []tonTransaction `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("failed to decode ton indexer response: %w", err)
	}
	if !out.Ok {
		return VerifyResult{Status: VerifyPending}, fmt.Errorf("ton indexer rejected getTransactions")
	}

	for _, tx := range out.Result {
		if tx.TransactionID.Hash == reference {
			nanotons, _ := strconv.ParseFloat(tx.InMsg.Value, 64)
			return VerifyResult{Status: VerifyPaid, Amount: nanotons / 1e9}, nil
		}
	}
	return VerifyResult{Status: VerifyNotFound}, nil
}

var _ PaymentVerifier = (*TonClient)(nil)
