// Package strategy contains the pricing-and-selection engine for the
// rolling short PUT helper.
//
// Responsibilities:
//   - Estimate the spot price and ATM strike from one chain snapshot
//   - Derive the expected move from the ATM straddle and the lower band
//   - Backfill missing greeks through the pricing kernel
//   - Classify every put into opportunity / neighbor / incomplete buckets
//
// Design notes:
//   - This package is a pure function of one chain snapshot and one
//     parameter set: no I/O, no shared state, safe for concurrent use
//   - Expected market-data gaps degrade to NO_DATA results or incomplete
//     rows; only an unusable ATM estimate is reported as an error
package strategy

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/contactkeval/put-finder/internal/data"
	"github.com/contactkeval/put-finder/internal/logger"
)

// RiskFreeRate is the flat annual rate used for model derivations. It is
// deliberately not caller-overridable.
const RiskFreeRate = 0.04

// Result statuses. Both are normal outcomes, not errors.
const (
	StatusOK     = "OK"
	StatusNoData = "NO_DATA"
)

// ErrNoATMEstimate is returned when no strike yields a usable put-call
// parity estimate and no call carries a vendor delta. The request cannot
// be satisfied with the supplied chain.
var ErrNoATMEstimate = errors.New("cannot determine ATM strike: no usable call/put mid prices")

// Parameters are the caller-supplied strategy bounds. Delta bounds apply
// to |delta|.
type Parameters struct {
	DeltaMin     float64
	DeltaMax     float64
	BandWindow   float64
	CreditMinPct float64
	CreditMaxPct float64

	// RelaxedFallback enables a second classification pass requiring
	// meets_band and at least one of meets_delta/meets_credit, applied
	// only when the strict pass selects nothing.
	RelaxedFallback bool
}

// PutRow is one enriched put contract in the selection output.
type PutRow struct {
	OptionTicker        string   `json:"option_ticker"`
	StrikePrice         float64  `json:"strike_price"`
	Last                *float64 `json:"last"`
	PutMid              *float64 `json:"put_mid"`
	Delta               *float64 `json:"delta"`
	IV                  *float64 `json:"iv"`
	GreeksSource        string   `json:"greeks_source"`
	Volume              *int64   `json:"volume"`
	OpenInterest        *int64   `json:"open_interest"`
	DistanceToLowerBand float64  `json:"distance_to_lower_band"`
	CreditPct           *float64 `json:"credit_pct"`
	MeetsBand           bool     `json:"meets_band"`
	MeetsDelta          bool     `json:"meets_delta"`
	MeetsCredit         bool     `json:"meets_credit"`
	Type                string   `json:"type"`
}

// IncompleteRow is a put for which no usable delta could be obtained,
// carrying whatever was computed before the derivation gave up.
type IncompleteRow struct {
	OptionTicker        string   `json:"option_ticker"`
	StrikePrice         float64  `json:"strike_price"`
	Last                *float64 `json:"last"`
	PutMid              *float64 `json:"put_mid"`
	Volume              *int64   `json:"volume"`
	OpenInterest        *int64   `json:"open_interest"`
	DistanceToLowerBand float64  `json:"distance_to_lower_band"`
	CreditPct           *float64 `json:"credit_pct"`
	IV                  *float64 `json:"iv"`
	GreeksSource        string   `json:"greeks_source"`
	ReasonMissing       string   `json:"reason_missing"`
}

// Meta carries diagnostic context on NO_DATA results.
type Meta struct {
	HasChain bool   `json:"has_chain"`
	Reason   string `json:"reason"`
}

// Result is the full selection output for one ticker and expiration.
type Result struct {
	Status         string          `json:"status"`
	Message        string          `json:"message,omitempty"`
	Ticker         string          `json:"ticker"`
	ExpirationDate string          `json:"expiration_date"`
	Meta           *Meta           `json:"meta,omitempty"`
	ATMStrike      *float64        `json:"atm_strike"`
	EM             *float64        `json:"em"`
	SpotApprox     *float64        `json:"spot_approx"`
	LowerBand      *float64        `json:"lower_band"`
	DeltaRange     [2]float64      `json:"delta_range"`
	CreditPctRange [2]float64      `json:"credit_pct_range"`
	Count          int             `json:"count"`
	Opportunities  []PutRow        `json:"opportunities"`
	Neighbors      []PutRow        `json:"neighbors"`
	Incomplete     []IncompleteRow `json:"incomplete"`
}

// SelectCandidates runs the full selection pass over one chain snapshot.
//
// Flow: split the chain, estimate spot/ATM, compute the expected move and
// lower band, backfill greeks per put, classify. The chain and parameters
// are the only inputs; now anchors the time-to-expiry computation so the
// pass stays deterministic.
//
// Returns ErrNoATMEstimate when the ATM strike cannot be determined; all
// other data gaps degrade to a NO_DATA result or incomplete rows.
func SelectCandidates(
	contracts []data.OptionContract,
	ticker, expirationDate string,
	params Parameters,
	now time.Time,
) (*Result, error) {

	logger.Infof(
		"event=select_candidates ticker=%s expiry=%s contracts=%d",
		ticker, expirationDate, len(contracts),
	)

	res := &Result{
		Status:         StatusNoData,
		Ticker:         strings.ToUpper(ticker),
		ExpirationDate: expirationDate,
		DeltaRange:     [2]float64{params.DeltaMin, params.DeltaMax},
		CreditPctRange: [2]float64{params.CreditMinPct, params.CreditMaxPct},
		Opportunities:  []PutRow{},
		Neighbors:      []PutRow{},
		Incomplete:     []IncompleteRow{},
	}

	// Split the snapshot into sides, preserving chain order.
	var callChain, putChain []data.OptionContract
	for _, c := range contracts {
		switch c.OptionType {
		case "call":
			callChain = append(callChain, c)
		case "put":
			putChain = append(putChain, c)
		}
	}

	if len(callChain) == 0 || len(putChain) == 0 {
		logger.Debugf("event=empty_chain_side calls=%d puts=%d", len(callChain), len(putChain))
		return res, nil
	}

	spotApprox, atmStrike, atmCall, err := estimateSpotATM(callChain, putChain)
	if err != nil {
		return nil, err
	}

	logger.Debugf("event=atm_resolved strike=%.2f spot=%.2f", atmStrike, spotApprox)

	// EM from the ATM straddle mid prices.
	var atmPut *data.OptionContract
	for i := range putChain {
		if putChain[i].Strike == atmStrike {
			atmPut = &putChain[i]
			break
		}
	}

	callMid := midPrice(atmCall.Bid, atmCall.Ask, atmCall.Last)
	var putMid *float64
	if atmPut != nil {
		putMid = midPrice(atmPut.Bid, atmPut.Ask, atmPut.Last)
	}

	if callMid == nil || putMid == nil {
		logger.Debugf("event=missing_atm_prices strike=%.2f", atmStrike)
		res.Message = "Cannot compute EM: missing prices at ATM for this expiration."
		res.Meta = &Meta{HasChain: true, Reason: "missing_atm_prices"}
		return res, nil
	}

	em := *callMid + *putMid
	lowerBand := spotApprox - em
	T := yearsToExpiry(expirationDate, now)

	logger.Debugf(
		"event=band_computed em=%.2f lower_band=%.2f T=%.4f",
		em, lowerBand, T,
	)

	enriched, incomplete := enrichPuts(putChain, spotApprox, lowerBand, T)
	opportunities, neighbors := classify(enriched, lowerBand, params)

	res.Status = StatusOK
	res.ATMStrike = &atmStrike
	res.EM = &em
	res.SpotApprox = &spotApprox
	res.LowerBand = &lowerBand
	res.Count = len(opportunities)
	res.Opportunities = opportunities
	res.Neighbors = neighbors
	res.Incomplete = incomplete

	logger.Infof(
		"event=selection_done ticker=%s opportunities=%d neighbors=%d incomplete=%d",
		res.Ticker, len(opportunities), len(neighbors), len(incomplete),
	)

	return res, nil
}

// estimateSpotATM determines the reference spot and ATM strike.
//
// Primary method: the call whose vendor |delta| is closest to 0.5, ties
// broken by the earliest strike in ascending order; its strike doubles as
// the spot proxy. Fallback: for every strike quoted on both sides with
// valid mids, estimate spot via put-call parity C - P + K (discounting
// ignored) and take the median of the estimates; the ATM strike is the
// quoted strike nearest that spot.
func estimateSpotATM(
	callChain, putChain []data.OptionContract,
) (spotApprox, atmStrike float64, atmCall *data.OptionContract, err error) {

	// Scan in ascending strike order so delta ties resolve to the lowest
	// strike deterministically.
	ordered := make([]*data.OptionContract, 0, len(callChain))
	for i := range callChain {
		ordered = append(ordered, &callChain[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Strike < ordered[j].Strike })

	var best *data.OptionContract
	bestDist := math.Inf(1)
	for _, c := range ordered {
		if c.Delta == nil {
			continue
		}
		dist := math.Abs(math.Abs(*c.Delta) - 0.5)
		if dist < bestDist {
			best = c
			bestDist = dist
		}
	}

	if best != nil {
		// An ATM call's strike is a reasonable spot proxy.
		return best.Strike, best.Strike, best, nil
	}

	// No vendor call deltas: put-call parity per strike.
	callMids := map[float64]*float64{}
	for i := range callChain {
		c := &callChain[i]
		if _, seen := callMids[c.Strike]; !seen {
			callMids[c.Strike] = midPrice(c.Bid, c.Ask, c.Last)
		}
	}
	putMids := map[float64]*float64{}
	for i := range putChain {
		p := &putChain[i]
		if _, seen := putMids[p.Strike]; !seen {
			putMids[p.Strike] = midPrice(p.Bid, p.Ask, p.Last)
		}
	}

	var strikes, estimates []float64
	for strike, cMid := range callMids {
		pMid := putMids[strike]
		if cMid == nil || pMid == nil {
			continue
		}
		strikes = append(strikes, strike)
		estimates = append(estimates, *cMid-*pMid+strike)
	}

	if len(estimates) == 0 {
		return 0, 0, nil, ErrNoATMEstimate
	}

	// Empirical median: lower of the two middle values for even counts.
	sort.Float64s(estimates)
	spotApprox = stat.Quantile(0.5, stat.Empirical, estimates, nil)

	sort.Float64s(strikes)
	atmStrike = data.Closest(strikes, spotApprox)

	for i := range callChain {
		if callChain[i].Strike == atmStrike {
			atmCall = &callChain[i]
			break
		}
	}

	logger.Tracef(
		"event=parity_fallback estimates=%d spot=%.2f atm=%.2f",
		len(estimates), spotApprox, atmStrike,
	)

	return spotApprox, atmStrike, atmCall, nil
}

// yearsToExpiry converts an expiration date string to a year fraction,
// flooring at one calendar day. Unparsable dates default to a 30-day
// horizon instead of failing the request.
func yearsToExpiry(expirationDate string, now time.Time) float64 {
	expiry, err := time.Parse("2006-01-02", expirationDate)
	if err != nil {
		return 30.0 / 365.0
	}

	days := int(expiry.Sub(now).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return float64(days) / 365.0
}

// midPrice derives a usable market price: the bid/ask average when both
// are positive, else a positive last trade, else nothing.
func midPrice(bid, ask, last *float64) *float64 {
	if bid != nil && ask != nil && *bid > 0 && *ask > 0 {
		mid := 0.5 * (*bid + *ask)
		return &mid
	}
	if last != nil && *last > 0 {
		return last
	}
	return nil
}
