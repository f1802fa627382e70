package strategy

import (
	"math"
	"sort"

	"github.com/contactkeval/put-finder/internal/data"
	"github.com/contactkeval/put-finder/internal/logger"
	"github.com/contactkeval/put-finder/internal/pricing"
)

// Classification tags.
const (
	typeOpportunity = "opportunity"
	typeNeighbor    = "neighbor"

	reasonNoUsableDelta = "no_usable_delta"
)

// enrichPuts builds one enriched row per put, backfilling delta and IV
// through the pricing kernel when the vendor did not supply them. Puts
// that still have no delta after backfill come back as incomplete rows
// in chain order.
func enrichPuts(
	putChain []data.OptionContract,
	spotApprox, lowerBand, T float64,
) ([]PutRow, []IncompleteRow) {

	var enriched []PutRow
	incomplete := []IncompleteRow{}

	for i := range putChain {
		opt := &putChain[i]
		mid := midPrice(opt.Bid, opt.Ask, opt.Last)

		delta := opt.Delta
		iv := opt.ImpliedVol
		greeksSource := opt.GreeksSource

		if delta == nil || iv == nil {
			if modelDelta, modelIV, ok := modelDeltaIV(spotApprox, opt.Strike, T, opt.Bid, opt.Ask, opt.Last); ok {
				delta = &modelDelta
				iv = &modelIV
				greeksSource = data.GreeksModel
			}
		}

		creditPct := creditPct(mid, spotApprox)

		if delta == nil {
			incomplete = append(incomplete, IncompleteRow{
				OptionTicker:        opt.OptionTicker,
				StrikePrice:         opt.Strike,
				Last:                opt.Last,
				PutMid:              mid,
				Volume:              opt.Volume,
				OpenInterest:        opt.OpenInterest,
				DistanceToLowerBand: opt.Strike - lowerBand,
				CreditPct:           creditPct,
				IV:                  iv,
				GreeksSource:        greeksSource,
				ReasonMissing:       reasonNoUsableDelta,
			})
			continue
		}

		enriched = append(enriched, PutRow{
			OptionTicker:        opt.OptionTicker,
			StrikePrice:         opt.Strike,
			Last:                opt.Last,
			PutMid:              mid,
			Delta:               delta,
			IV:                  iv,
			GreeksSource:        greeksSource,
			Volume:              opt.Volume,
			OpenInterest:        opt.OpenInterest,
			DistanceToLowerBand: opt.Strike - lowerBand,
			CreditPct:           creditPct,
		})
	}

	return enriched, incomplete
}

// modelDeltaIV derives (delta, IV) from the pricing kernel when a usable
// market price exists. Every failure mode (no price, out-of-bracket
// solve, non-convergence, invalid kernel inputs) reports ok=false; the
// caller keeps the greeks missing.
func modelDeltaIV(S, K, T float64, bid, ask, last *float64) (delta, iv float64, ok bool) {
	marketPrice := midPrice(bid, ask, last)
	if marketPrice == nil {
		return 0, 0, false
	}

	iv, err := pricing.ImpliedVolPut(*marketPrice, S, K, T, RiskFreeRate)
	if err != nil || iv <= 0 {
		logger.Tracef("event=iv_backfill_failed strike=%.2f err=%v", K, err)
		return 0, 0, false
	}

	delta, err = pricing.PutDelta(S, K, T, RiskFreeRate, iv)
	if err != nil {
		return 0, 0, false
	}

	return delta, iv, true
}

// creditPct expresses the mid price as a fraction of the estimated spot.
// Undefined when either input is unusable.
func creditPct(mid *float64, spotApprox float64) *float64 {
	if mid == nil || spotApprox <= 0 {
		return nil
	}
	pct := *mid / spotApprox
	return &pct
}

// classify computes the meets_* flags on every enriched row and partitions
// the rows into opportunities and neighbors.
//
// Policy: a row is an opportunity iff meets_band, meets_delta and
// meets_credit all hold. When the strict pass selects nothing and
// RelaxedFallback is set, a second pass requires meets_band plus at least
// one of the other two flags. The flags stay on every row either way, so
// a caller can recompute any weaker policy from the output.
//
// Neighbors are the strike immediately below the lowest opportunity
// strike and immediately above the highest (at most two rows), included
// purely for visual context around the selected band.
func classify(enriched []PutRow, lowerBand float64, params Parameters) ([]PutRow, []PutRow) {
	for i := range enriched {
		row := &enriched[i]

		row.MeetsBand = row.StrikePrice >= lowerBand-params.BandWindow &&
			row.StrikePrice <= lowerBand+params.BandWindow

		if row.Delta != nil {
			dd := math.Abs(*row.Delta)
			row.MeetsDelta = dd >= params.DeltaMin && dd <= params.DeltaMax
		}

		if row.CreditPct != nil {
			cp := *row.CreditPct
			row.MeetsCredit = cp >= params.CreditMinPct && cp <= params.CreditMaxPct
		}
	}

	selected := func(row *PutRow) bool {
		return row.MeetsBand && row.MeetsDelta && row.MeetsCredit
	}

	strictEmpty := true
	for i := range enriched {
		if selected(&enriched[i]) {
			strictEmpty = false
			break
		}
	}

	if strictEmpty && params.RelaxedFallback {
		logger.Debugf("event=relaxed_pass lower_band=%.2f", lowerBand)
		selected = func(row *PutRow) bool {
			return row.MeetsBand && (row.MeetsDelta || row.MeetsCredit)
		}
	}

	opportunities := []PutRow{}
	oppStrikes := map[float64]bool{}
	for i := range enriched {
		if selected(&enriched[i]) {
			row := enriched[i]
			row.Type = typeOpportunity
			opportunities = append(opportunities, row)
			oppStrikes[row.StrikePrice] = true
		}
	}

	neighbors := []PutRow{}
	if len(opportunities) > 0 {
		neighborStrikes := findNeighborStrikes(enriched, oppStrikes)
		for i := range enriched {
			row := enriched[i]
			if neighborStrikes[row.StrikePrice] && !oppStrikes[row.StrikePrice] {
				row.Type = typeNeighbor
				neighbors = append(neighbors, row)
			}
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].StrikePrice < opportunities[j].StrikePrice
	})
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].StrikePrice < neighbors[j].StrikePrice
	})

	return opportunities, neighbors
}

// findNeighborStrikes locates the strikes immediately outside the
// selected strike range on the full grid of enriched strikes.
func findNeighborStrikes(enriched []PutRow, oppStrikes map[float64]bool) map[float64]bool {
	seen := map[float64]bool{}
	var allStrikes []float64
	for i := range enriched {
		s := enriched[i].StrikePrice
		if !seen[s] {
			seen[s] = true
			allStrikes = append(allStrikes, s)
		}
	}
	sort.Float64s(allStrikes)

	minOpp, maxOpp := math.Inf(1), math.Inf(-1)
	for s := range oppStrikes {
		minOpp = math.Min(minOpp, s)
		maxOpp = math.Max(maxOpp, s)
	}

	neighbors := map[float64]bool{}
	for i, s := range allStrikes {
		if s == minOpp && i > 0 {
			neighbors[allStrikes[i-1]] = true
		}
		if s == maxOpp && i < len(allStrikes)-1 {
			neighbors[allStrikes[i+1]] = true
		}
	}

	return neighbors
}
