// Package testutil provides shared option-chain fixtures for tests.
package testutil

import (
	"time"

	"github.com/contactkeval/put-finder/internal/data"
)

// Expiry is the fixed expiration used by chain fixtures.
var Expiry = time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC)

// ExpiryString is Expiry in the wire format providers use.
const ExpiryString = "2026-10-16"

//
// --- Chain fixture builders ---
//

// Call returns a bare call contract with no quotes or greeks.
func Call(underlying string, strike float64) data.OptionContract {
	return contract(underlying, "call", strike)
}

// Put returns a bare put contract with no quotes or greeks.
func Put(underlying string, strike float64) data.OptionContract {
	return contract(underlying, "put", strike)
}

func contract(underlying, optionType string, strike float64) data.OptionContract {
	return data.OptionContract{
		Underlying:   underlying,
		OptionTicker: data.OptionSymbolFromParts(underlying, Expiry, optionType, strike),
		OptionType:   optionType,
		Strike:       strike,
		Expiry:       Expiry,
		GreeksSource: data.GreeksNone,
	}
}

// Quoted attaches a bid/ask quote to a contract.
func Quoted(c data.OptionContract, bid, ask float64) data.OptionContract {
	c.Bid = data.Float64(bid)
	c.Ask = data.Float64(ask)
	return c
}

// LastOnly attaches only a last trade price to a contract.
func LastOnly(c data.OptionContract, last float64) data.OptionContract {
	c.Last = data.Float64(last)
	return c
}

// WithVendorDelta marks a contract as carrying a vendor delta.
func WithVendorDelta(c data.OptionContract, delta float64) data.OptionContract {
	c.Delta = data.Float64(delta)
	c.GreeksSource = data.GreeksVendor
	return c
}

// WithVendorGreeks marks a contract as carrying vendor delta and IV.
func WithVendorGreeks(c data.OptionContract, delta, iv float64) data.OptionContract {
	c.Delta = data.Float64(delta)
	c.ImpliedVol = data.Float64(iv)
	c.GreeksSource = data.GreeksVendor
	return c
}
