package data

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/contactkeval/put-finder/internal/logger"
)

// yahooProvider implements Provider using the public Yahoo Finance
// options endpoint. Yahoo does not supply deltas, so chains from this
// provider always go through the model backfill and the put-call-parity
// spot estimate downstream.
type yahooProvider struct {
	client  *http.Client
	baseURL string
}

func NewYahooProvider() Provider {
	logger.Infof("initializing Yahoo chain provider")
	return &yahooProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://query1.finance.yahoo.com",
	}
}

func (yahooProv *yahooProvider) Name() string { return "yahoo" }

// yahooQuoteRow is one contract row inside a Yahoo options response.
type yahooQuoteRow struct {
	ContractSymbol string   `json:"contractSymbol"`
	Strike         float64  `json:"strike"`
	Bid            *float64 `json:"bid"`
	Ask            *float64 `json:"ask"`
	LastPrice      *float64 `json:"lastPrice"`
	Volume         *int64   `json:"volume"`
	OpenInterest   *int64   `json:"openInterest"`
}

func (yahooProv *yahooProvider) GetOptionChain(ticker, expirationDate string) ([]OptionContract, error) {
	expiry, err := time.Parse("2006-01-02", expirationDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration date %q: %w", expirationDate, err)
	}

	symbol := strings.ToUpper(ticker)
	url := fmt.Sprintf(
		"%s/v7/finance/options/%s?date=%d",
		yahooProv.baseURL,
		symbol,
		expiry.UTC().Unix(),
	)

	logger.Debugf("yahoo chain request URL: %s", url)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "put-finder/1.0")

	resp, err := yahooProv.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo options status %d", resp.StatusCode)
	}

	var body struct {
		OptionChain struct {
			Result []struct {
				Options []struct {
					Calls []yahooQuoteRow `json:"calls"`
					Puts  []yahooQuoteRow `json:"puts"`
				} `json:"options"`
			} `json:"result"`
		} `json:"optionChain"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing yahoo response: %w", err)
	}

	if len(body.OptionChain.Result) == 0 || len(body.OptionChain.Result[0].Options) == 0 {
		return nil, nil
	}

	chain := body.OptionChain.Result[0].Options[0]
	logger.Tracef("yahoo chain: %d calls, %d puts", len(chain.Calls), len(chain.Puts))

	out := make([]OptionContract, 0, len(chain.Calls)+len(chain.Puts))
	for _, row := range chain.Calls {
		out = append(out, yahooContract(symbol, "call", expiry, row))
	}
	for _, row := range chain.Puts {
		out = append(out, yahooContract(symbol, "put", expiry, row))
	}

	return out, nil
}

func yahooContract(underlying, optionType string, expiry time.Time, row yahooQuoteRow) OptionContract {
	ticker := row.ContractSymbol
	if ticker == "" {
		ticker = OptionSymbolFromParts(underlying, expiry, optionType, row.Strike)
	}

	return OptionContract{
		Underlying:   underlying,
		OptionTicker: ticker,
		OptionType:   optionType,
		Strike:       row.Strike,
		Expiry:       expiry,
		Bid:          positivePrice(row.Bid),
		Ask:          positivePrice(row.Ask),
		Last:         positivePrice(row.LastPrice),
		Volume:       row.Volume,
		OpenInterest: row.OpenInterest,
		GreeksSource: GreeksNone,
	}
}
