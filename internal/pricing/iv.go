package pricing

import (
	"errors"
	"math"
)

// Bisection bounds and convergence parameters for the put IV solver.
const (
	sigmaLow  = 1e-4
	sigmaHigh = 5.0
	ivTol     = 1e-4
	ivMaxIter = 100
)

// ErrNoSolution is returned when the implied-volatility search cannot
// bracket the observed market price or fails to converge. Callers treat
// it the same way as ErrInvalidInputs: the contract simply cannot be
// priced from the available data.
var ErrNoSolution = errors.New("implied vol has no solution")

// ImpliedVolPut recovers the implied volatility of a European put from an
// observed market price using bisection.
//
// The put price is monotonically increasing in sigma, so the solver first
// checks that marketPrice lies within [price(sigmaLow), price(sigmaHigh)].
// If it does not, the search aborts with ErrNoSolution rather than
// extrapolate beyond the bracket.
//
// Parameters:
//   - marketPrice: observed put price (mid or last)
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//
// Returns:
//
//	The volatility sigma such that PutPrice(sigma) is within 1e-4 of
//	marketPrice, or ErrNoSolution when the price is out of bracket or
//	the iteration limit is exhausted. Deterministic and side-effect
//	free: the same inputs always produce the same output.
func ImpliedVolPut(marketPrice, S, K, T, r float64) (float64, error) {
	if marketPrice <= 0 {
		return 0, ErrNoSolution
	}

	lo, hi := sigmaLow, sigmaHigh

	priceLow, err := PutPrice(S, K, T, r, lo)
	if err != nil {
		return 0, ErrNoSolution
	}
	priceHigh, err := PutPrice(S, K, T, r, hi)
	if err != nil {
		return 0, ErrNoSolution
	}

	if marketPrice < priceLow || marketPrice > priceHigh {
		return 0, ErrNoSolution
	}

	for i := 0; i < ivMaxIter; i++ {
		mid := 0.5 * (lo + hi)

		priceMid, err := PutPrice(S, K, T, r, mid)
		if err != nil {
			return 0, ErrNoSolution
		}

		if math.Abs(priceMid-marketPrice) < ivTol {
			return mid, nil
		}

		// price too high means vol too high
		if priceMid > marketPrice {
			hi = mid
		} else {
			lo = mid
		}
	}

	return 0, ErrNoSolution
}
