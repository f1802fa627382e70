package pricing

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidInputs is returned when a pricing function receives a
// non-positive spot, strike, expiry or volatility. Callers must treat it
// as "cannot price", not as a fatal condition.
var ErrInvalidInputs = errors.New("invalid inputs to d1/d2")

// D1D2 computes the d1 and d2 terms of the Black-Scholes formula.
//
// Parameters:
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	d1 and d2, or ErrInvalidInputs when any of S, K, T, sigma is
//	non-positive.
func D1D2(S, K, T, r, sigma float64) (float64, float64, error) {
	if S <= 0 || K <= 0 || T <= 0 || sigma <= 0 {
		return 0, 0, ErrInvalidInputs
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)
	return d1, d2, nil
}

// PutPrice calculates the price of a European put option using the
// Black-Scholes model.
//
// Parameters:
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical put price K·e^(-rT)·Φ(-d2) - S·Φ(-d1), or
//	ErrInvalidInputs for non-positive S, K, T or sigma.
func PutPrice(S, K, T, r, sigma float64) (float64, error) {
	d1, d2, err := D1D2(S, K, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return K*math.Exp(-r*T)*normCDF(-d2) - S*normCDF(-d1), nil
}

// CallPrice calculates the price of a European call option using the
// Black-Scholes model. Same contract as PutPrice.
func CallPrice(S, K, T, r, sigma float64) (float64, error) {
	d1, d2, err := D1D2(S, K, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return S*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2), nil
}

// PutDelta calculates the delta of a European put option.
//
// Delta measures the sensitivity of the option price to changes in the
// underlying price. For a put it equals Φ(d1) - 1 and is always in [-1, 0].
//
// Returns ErrInvalidInputs for non-positive S, K, T or sigma.
func PutDelta(S, K, T, r, sigma float64) (float64, error) {
	d1, _, err := D1D2(S, K, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return normCDF(d1) - 1.0, nil
}

// CallDelta calculates the delta of a European call option, Φ(d1).
// Used by the synthetic chain generator to produce vendor-like deltas.
func CallDelta(S, K, T, r, sigma float64) (float64, error) {
	d1, _, err := D1D2(S, K, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return normCDF(d1), nil
}

// normCDF computes the cumulative distribution function of the standard
// normal distribution for a given value x. It returns a value between 0
// and 1 representing the probability that a standard normal random
// variable is less than or equal to x.
//
// Equivalent to 0.5 * (1 + erf(x/√2)).
func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}
