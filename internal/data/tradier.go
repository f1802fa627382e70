// Package data provides option chain provider implementations.
//
// This file contains a Tradier-backed Provider that retrieves option
// chains with vendor greeks via the Tradier market data HTTP API.
//
// Design notes:
//   - Uses raw HTTP calls against the chains endpoint
//   - Supports rate-limiting retries
//   - Vendor greeks are passed through untouched; rows without greeks are
//     left for the model backfill downstream
package data

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/contactkeval/put-finder/internal/logger"
)

// tradierProvider implements the Provider interface using Tradier APIs.
type tradierProvider struct {
	// Token used for authenticating requests with Tradier.
	Token string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	// BaseURL is the root endpoint for Tradier APIs
	// (e.g., https://api.tradier.com).
	BaseURL string
}

// tradierGreeks models the per-contract greeks block returned when the
// chains endpoint is queried with greeks=true. Fields are pointers so a
// null from the vendor stays distinguishable from zero.
type tradierGreeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	MidIV *float64 `json:"mid_iv"`
}

// tradierOption represents a single option contract row in a Tradier
// chain response.
type tradierOption struct {
	Symbol         string         `json:"symbol"`
	Underlying     string         `json:"underlying"`
	Strike         float64        `json:"strike"`
	ExpirationDate string         `json:"expiration_date"`
	OptionType     string         `json:"option_type"`
	Bid            *float64       `json:"bid"`
	Ask            *float64       `json:"ask"`
	Last           *float64       `json:"last"`
	Volume         *int64         `json:"volume"`
	OpenInterest   *int64         `json:"open_interest"`
	Greeks         *tradierGreeks `json:"greeks"`
}

// tradierChainResp models the chains endpoint response envelope.
type tradierChainResp struct {
	Options struct {
		Option []tradierOption `json:"option"`
	} `json:"options"`
}

// NewTradierProvider constructs a Tradier-backed chain provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
//   - gzip decompression
//
// Parameters:
//   - token: Tradier access token for authentication
//
// Returns:
//   - *tradierProvider: initialized provider instance
func NewTradierProvider(token string) *tradierProvider {
	logger.Infof("initializing Tradier chain provider")

	return &tradierProvider{
		Token: token,
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		BaseURL: "https://api.tradier.com",
	}
}

// Name identifies this provider in logs and status responses.
func (tradierProv *tradierProvider) Name() string { return "tradier" }

// GetOptionChain retrieves the full call and put chain for one
// expiration, with vendor greeks attached where Tradier supplies them.
//
// Parameters:
//   - ticker: underlying symbol
//   - expirationDate: expiration in YYYY-MM-DD format
//
// Returns:
//   - []OptionContract: normalized contracts for both sides of the chain
//   - error: if the request or decoding fails
func (tradierProv *tradierProvider) GetOptionChain(ticker, expirationDate string) ([]OptionContract, error) {
	logger.Tracef(
		"fetching option chain: %s expiry=%s",
		ticker,
		expirationDate,
	)

	// Build base URL
	reqURL, err := url.Parse(tradierProv.BaseURL + "/v1/markets/options/chains")
	if err != nil {
		return nil, err
	}

	// Query parameters
	query := reqURL.Query()
	query.Set("symbol", strings.ToUpper(ticker))
	query.Set("expiration", expirationDate)
	query.Set("greeks", "true")
	reqURL.RawQuery = query.Encode()

	logger.Debugf("chain request URL: %s", reqURL.String())

	req, err := http.NewRequest("GET", reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+tradierProv.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := tradierProv.processGetRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	if resp.StatusCode != http.StatusOK {
		var dbg struct {
			Fault struct {
				FaultString string `json:"faultstring"`
			} `json:"fault"`
		}
		_ = json.Unmarshal(body, &dbg)

		logger.Errorf(
			"tradier chains API error status=%d message=%s",
			resp.StatusCode,
			dbg.Fault.FaultString,
		)
		return nil, fmt.Errorf(
			"tradier returned status %d: %s",
			resp.StatusCode,
			dbg.Fault.FaultString,
		)
	}

	var chainResp tradierChainResp
	if err := json.Unmarshal(body, &chainResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	logger.Tracef("received %d contracts", len(chainResp.Options.Option))

	out := make([]OptionContract, 0, len(chainResp.Options.Option))
	for _, row := range chainResp.Options.Option {
		// parse expiration
		t, err := time.Parse("2006-01-02", row.ExpirationDate)
		if err != nil {
			continue // skip malformed expiry dates
		}

		contract := OptionContract{
			Underlying:   row.Underlying,
			OptionTicker: row.Symbol,
			OptionType:   strings.ToLower(row.OptionType),
			Strike:       row.Strike,
			Expiry:       t,
			Bid:          positivePrice(row.Bid),
			Ask:          positivePrice(row.Ask),
			Last:         positivePrice(row.Last),
			Volume:       row.Volume,
			OpenInterest: row.OpenInterest,
			GreeksSource: GreeksNone,
		}

		if row.Greeks != nil {
			contract.Delta = row.Greeks.Delta
			contract.Gamma = row.Greeks.Gamma
			contract.Theta = row.Greeks.Theta
			contract.Vega = row.Greeks.Vega
			contract.ImpliedVol = row.Greeks.MidIV
			if row.Greeks.Delta != nil || row.Greeks.MidIV != nil {
				contract.GreeksSource = GreeksVendor
			}
		}

		out = append(out, contract)
	}

	return out, nil
}

// positivePrice drops vendor placeholders: Tradier reports 0 or negative
// prices for untraded contracts, which must read as "missing" downstream.
func positivePrice(p *float64) *float64 {
	if p == nil || *p <= 0 {
		return nil
	}
	return p
}

// processGetRequest executes an HTTP GET request with rate-limit handling.
//
// Behavior:
//   - Retries indefinitely on HTTP 429
//   - Sleeps until the next minute boundary
//   - Other status codes are returned to the caller for decoding
func (tradierProv *tradierProvider) processGetRequest(req *http.Request) (*http.Response, error) {
	for {
		resp, err := tradierProv.Client.Do(req)
		if err != nil {
			return nil, err
		}

		// Handle per-minute rate limit (commonly 429)
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			// Sleep until the next minute boundary
			now := time.Now()
			sleepDuration := time.Until(
				now.Truncate(time.Minute).Add(time.Minute),
			)

			logger.Infof("rate limit hit, sleeping for %s", sleepDuration)
			time.Sleep(sleepDuration)
			continue
		}

		return resp, nil
	}
}
