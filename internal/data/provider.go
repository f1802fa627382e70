package data

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Values for OptionContract.GreeksSource.
const (
	GreeksVendor = "vendor" // greeks supplied by the data vendor
	GreeksModel  = "model"  // greeks derived by the pricing model
	GreeksNone   = "none"   // no greeks available
)

// Provider supplies a normalized option chain for one ticker and
// expiration. Implementations perform all network I/O; consumers of the
// chain never do.
type Provider interface {
	// Name identifies the provider in logs and status responses.
	Name() string

	// GetOptionChain returns every call and put contract for the given
	// underlying and expiration date (YYYY-MM-DD).
	GetOptionChain(ticker, expirationDate string) ([]OptionContract, error)
}

// OptionContract is a single normalized option quote row. Pointer fields
// are nil when the vendor did not supply the value, which is distinct
// from a zero value.
type OptionContract struct {
	Underlying   string
	OptionTicker string
	OptionType   string // "call" or "put"
	Strike       float64
	Expiry       time.Time

	Bid  *float64
	Ask  *float64
	Last *float64

	Volume       *int64
	OpenInterest *int64

	Delta      *float64
	Gamma      *float64
	Theta      *float64
	Vega       *float64
	ImpliedVol *float64

	GreeksSource string
}

// ResolveProvider picks the active chain provider.
//
// An explicit name ("tradier", "yahoo", "synthetic") wins. Otherwise the
// choice falls out of the available credentials: Tradier when a token is
// configured (vendor greeks), else Yahoo (no greeks, exercises the model
// backfill downstream).
func ResolveProvider(name, tradierToken string) Provider {
	switch strings.ToLower(name) {
	case "tradier":
		return NewTradierProvider(tradierToken)
	case "yahoo":
		return NewYahooProvider()
	case "synthetic":
		return NewSyntheticProvider()
	}

	if tradierToken != "" {
		return NewTradierProvider(tradierToken)
	}
	return NewYahooProvider()
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// OptionSymbolFromParts: improved OCC-like formatter (best-effort)
func OptionSymbolFromParts(underlying string, expiryDate time.Time, optionType string, strike float64) string {
	// OCC: <root><YYMMDD><C|P><strike*1000 padded to 8 digits>
	expDt := expiryDate.UTC().Format("060102")
	optType := "C"
	if strings.ToLower(optionType) == "put" || strings.ToLower(optionType) == "p" {
		optType = "P"
	}
	strikeInt := int(math.Round(strike * 1000))
	strFmt := fmt.Sprintf("%08d", strikeInt)
	return fmt.Sprintf("O:%s%s%s%s", strings.ToUpper(underlying), expDt, optType, strFmt)
}

// Closest finds the closest float64 in a sorted slice to the target value using binary search (sort.Search).
func Closest(numList []float64, target float64) float64 {
	n := len(numList)
	if n == 0 {
		panic("empty list")
	}

	i := sort.Search(n, func(i int) bool {
		return numList[i] >= target
	})

	if i == 0 {
		return numList[0]
	}
	if i == n {
		return numList[n-1]
	}

	before := numList[i-1]
	after := numList[i]

	if math.Abs(before-target) < math.Abs(after-target) {
		return before
	}
	return after
}

// Float64 returns a pointer to v. Convenience for building contracts.
func Float64(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
