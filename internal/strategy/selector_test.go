package strategy

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/contactkeval/put-finder/internal/data"
	"github.com/contactkeval/put-finder/internal/testutil"
)

// asOf is 30 calendar days before the fixture expiry.
var asOf = time.Date(2026, time.September, 16, 0, 0, 0, 0, time.UTC)

func defaultParams() Parameters {
	return Parameters{
		DeltaMin:     0.20,
		DeltaMax:     0.25,
		BandWindow:   0.00,
		CreditMinPct: 0.006,
		CreditMaxPct: 0.008,
	}
}

func almostEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %f, want %f", name, got, want)
	}
}

func TestSelectCandidatesStraddleBand(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
		testutil.Quoted(testutil.Put("XYZ", 90), 1.00, 1.20),
	}

	res, err := SelectCandidates(contracts, "xyz", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != StatusOK {
		t.Fatalf("status = %s, want %s", res.Status, StatusOK)
	}
	if res.Ticker != "XYZ" {
		t.Fatalf("ticker = %s, want XYZ", res.Ticker)
	}
	almostEqual(t, "atm_strike", *res.ATMStrike, 100)
	almostEqual(t, "spot_approx", *res.SpotApprox, 100)
	almostEqual(t, "em", *res.EM, 3.80)
	almostEqual(t, "lower_band", *res.LowerBand, 96.20)

	// Neither put carried vendor greeks, so both must come back with
	// model-derived delta and IV.
	if len(res.Incomplete) != 0 {
		t.Fatalf("incomplete = %d, want 0", len(res.Incomplete))
	}
	if res.Count != 0 {
		t.Fatalf("count = %d, want 0 with a zero band window", res.Count)
	}
}

func TestSelectCandidatesBackfillsModelGreeks(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
		testutil.Quoted(testutil.Put("XYZ", 90), 1.00, 1.20),
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var row90 *PutRow
	for _, bucket := range [][]PutRow{res.Opportunities, res.Neighbors} {
		for i := range bucket {
			if bucket[i].StrikePrice == 90 {
				row90 = &bucket[i]
			}
		}
	}
	if row90 == nil {
		// Rows outside the band are neither opportunities nor neighbors;
		// re-run enrichment directly to inspect the backfill.
		enriched, incomplete := enrichPuts(
			contracts[1:], 100, 96.20, 30.0/365.0,
		)
		if len(incomplete) != 0 {
			t.Fatalf("incomplete = %d, want 0", len(incomplete))
		}
		for i := range enriched {
			if enriched[i].StrikePrice == 90 {
				row90 = &enriched[i]
			}
		}
	}
	if row90 == nil {
		t.Fatal("strike 90 missing from enriched rows")
	}

	if row90.GreeksSource != data.GreeksModel {
		t.Fatalf("greeks_source = %s, want %s", row90.GreeksSource, data.GreeksModel)
	}
	if row90.Delta == nil || *row90.Delta >= 0 || *row90.Delta < -1 {
		t.Fatalf("model delta out of range: %v", row90.Delta)
	}
	if row90.IV == nil || *row90.IV <= 0 {
		t.Fatalf("model iv not positive: %v", row90.IV)
	}
	almostEqual(t, "put_mid", *row90.PutMid, 1.10)
	almostEqual(t, "distance_to_lower_band", row90.DistanceToLowerBand, 90-96.20)
}

func TestSelectCandidatesOpportunityAndNeighbors(t *testing.T) {
	params := defaultParams()
	params.BandWindow = 1.0

	contracts := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 100), -0.45, 0.18), 1.70, 1.90),
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 95), -0.10, 0.22), 0.45, 0.55),
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 96), -0.22, 0.25), 0.65, 0.75),
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 97), -0.30, 0.28), 0.85, 0.95),
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, params, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Count != 1 || len(res.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(res.Opportunities))
	}
	opp := res.Opportunities[0]
	if opp.StrikePrice != 96 {
		t.Fatalf("opportunity strike = %f, want 96", opp.StrikePrice)
	}
	if !opp.MeetsBand || !opp.MeetsDelta || !opp.MeetsCredit {
		t.Fatalf("opportunity flags = band:%v delta:%v credit:%v, want all true",
			opp.MeetsBand, opp.MeetsDelta, opp.MeetsCredit)
	}
	if opp.Type != typeOpportunity {
		t.Fatalf("opportunity type = %q", opp.Type)
	}
	if opp.GreeksSource != data.GreeksVendor {
		t.Fatalf("greeks_source = %s, want %s", opp.GreeksSource, data.GreeksVendor)
	}

	if len(res.Neighbors) != 2 {
		t.Fatalf("neighbors = %d, want 2", len(res.Neighbors))
	}
	if res.Neighbors[0].StrikePrice != 95 || res.Neighbors[1].StrikePrice != 97 {
		t.Fatalf("neighbor strikes = %f, %f, want 95, 97",
			res.Neighbors[0].StrikePrice, res.Neighbors[1].StrikePrice)
	}
	for _, n := range res.Neighbors {
		if n.Type != typeNeighbor {
			t.Fatalf("neighbor type = %q", n.Type)
		}
	}
}

func TestSelectCandidatesRelaxedFallback(t *testing.T) {
	base := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 100), -0.45, 0.18), 1.70, 1.90),
		// In band, delta too high, credit in range: only the relaxed
		// pass can select it.
		testutil.Quoted(testutil.WithVendorGreeks(testutil.Put("XYZ", 96), -0.30, 0.25), 0.65, 0.75),
	}

	strict := defaultParams()
	strict.BandWindow = 1.0

	res, err := SelectCandidates(base, "XYZ", testutil.ExpiryString, strict, asOf)
	if err != nil {
		t.Fatalf("strict: %v", err)
	}
	if len(res.Opportunities) != 0 || len(res.Neighbors) != 0 {
		t.Fatalf("strict pass selected %d opportunities, %d neighbors, want none",
			len(res.Opportunities), len(res.Neighbors))
	}

	relaxed := strict
	relaxed.RelaxedFallback = true

	res, err = SelectCandidates(base, "XYZ", testutil.ExpiryString, relaxed, asOf)
	if err != nil {
		t.Fatalf("relaxed: %v", err)
	}
	if len(res.Opportunities) != 1 || res.Opportunities[0].StrikePrice != 96 {
		t.Fatalf("relaxed pass opportunities = %+v, want single strike 96", res.Opportunities)
	}
	// Flags are reported as computed even when the relaxed policy
	// selected the row.
	if res.Opportunities[0].MeetsDelta {
		t.Fatal("meets_delta should remain false on the relaxed selection")
	}
}

func TestSelectCandidatesEmptySide(t *testing.T) {
	onlyCalls := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
	}

	res, err := SelectCandidates(onlyCalls, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNoData {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoData)
	}
	if res.Count != 0 || len(res.Opportunities) != 0 || len(res.Neighbors) != 0 || len(res.Incomplete) != 0 {
		t.Fatal("NO_DATA result must carry empty buckets")
	}
	if res.ATMStrike != nil || res.EM != nil || res.SpotApprox != nil || res.LowerBand != nil {
		t.Fatal("NO_DATA result must not carry band values")
	}
}

func TestSelectCandidatesMissingATMPrices(t *testing.T) {
	contracts := []data.OptionContract{
		// The ATM call is identified by its vendor delta but has no
		// usable quote, so the straddle cannot be priced.
		testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNoData {
		t.Fatalf("status = %s, want %s", res.Status, StatusNoData)
	}
	if res.Meta == nil || !res.Meta.HasChain || res.Meta.Reason != "missing_atm_prices" {
		t.Fatalf("meta = %+v, want has_chain with reason missing_atm_prices", res.Meta)
	}
	if res.Message == "" {
		t.Fatal("NO_DATA with a chain should carry a message")
	}
}

func TestSelectCandidatesParityFallback(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Quoted(testutil.Call("XYZ", 95), 6.90, 7.10),
		testutil.Quoted(testutil.Call("XYZ", 100), 3.40, 3.60),
		testutil.Quoted(testutil.Call("XYZ", 105), 1.30, 1.50),
		testutil.Quoted(testutil.Call("XYZ", 110), 0.40, 0.60),
		testutil.Quoted(testutil.Put("XYZ", 95), 0.70, 0.90),
		testutil.Quoted(testutil.Put("XYZ", 100), 2.40, 2.60),
		testutil.Quoted(testutil.Put("XYZ", 105), 5.50, 5.70),
		testutil.Quoted(testutil.Put("XYZ", 110), 9.00, 9.20),
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Parity estimates per strike: 101.2, 101.0, 100.8, 101.4. The median
	// of an even count is the lower of the two middle values.
	almostEqual(t, "spot_approx", *res.SpotApprox, 101.0)
	almostEqual(t, "atm_strike", *res.ATMStrike, 100)
}

func TestSelectCandidatesNoATMEstimate(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Call("XYZ", 100),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if !errors.Is(err, ErrNoATMEstimate) {
		t.Fatalf("err = %v, want ErrNoATMEstimate", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil on error", res)
	}
}

func TestSelectCandidatesIncompleteRows(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
		testutil.Put("XYZ", 85), // no quotes at all
	}

	res, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Incomplete) != 1 {
		t.Fatalf("incomplete = %d, want 1", len(res.Incomplete))
	}
	row := res.Incomplete[0]
	if row.StrikePrice != 85 {
		t.Fatalf("incomplete strike = %f, want 85", row.StrikePrice)
	}
	if row.ReasonMissing != reasonNoUsableDelta {
		t.Fatalf("reason_missing = %q, want %q", row.ReasonMissing, reasonNoUsableDelta)
	}
	if row.PutMid != nil || row.CreditPct != nil {
		t.Fatal("quote-less incomplete row must not carry mid or credit")
	}
	almostEqual(t, "distance_to_lower_band", row.DistanceToLowerBand, 85-96.20)
}

func TestSelectCandidatesDeterministic(t *testing.T) {
	contracts := []data.OptionContract{
		testutil.Quoted(testutil.WithVendorDelta(testutil.Call("XYZ", 100), 0.50), 1.90, 2.10),
		testutil.Quoted(testutil.Put("XYZ", 100), 1.70, 1.90),
		testutil.Quoted(testutil.Put("XYZ", 95), 0.80, 1.00),
		testutil.LastOnly(testutil.Put("XYZ", 90), 0.55),
	}

	first, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := SelectCandidates(contracts, "XYZ", testutil.ExpiryString, defaultParams(), asOf)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs produced different results")
	}
}

func TestYearsToExpiry(t *testing.T) {
	cases := []struct {
		name string
		date string
		want float64
	}{
		{"thirty days out", "2026-10-16", 30.0 / 365.0},
		{"same day floors to one", "2026-09-16", 1.0 / 365.0},
		{"past date floors to one", "2026-09-01", 1.0 / 365.0},
		{"unparsable defaults to thirty", "next-friday", 30.0 / 365.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := yearsToExpiry(tc.date, asOf)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("yearsToExpiry(%q) = %f, want %f", tc.date, got, tc.want)
			}
		})
	}
}

func TestMidPrice(t *testing.T) {
	cases := []struct {
		name           string
		bid, ask, last *float64
		want           *float64
	}{
		{"bid and ask", data.Float64(1.0), data.Float64(1.2), nil, data.Float64(1.1)},
		{"quote beats last", data.Float64(1.0), data.Float64(1.2), data.Float64(5.0), data.Float64(1.1)},
		{"last only", nil, nil, data.Float64(0.55), data.Float64(0.55)},
		{"zero bid falls back to last", data.Float64(0), data.Float64(1.2), data.Float64(0.55), data.Float64(0.55)},
		{"zero last unusable", nil, nil, data.Float64(0), nil},
		{"nothing", nil, nil, nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := midPrice(tc.bid, tc.ask, tc.last)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("got %f, want nil", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("got nil, want %f", *tc.want)
			case tc.want != nil && math.Abs(*got-*tc.want) > 1e-9:
				t.Fatalf("got %f, want %f", *got, *tc.want)
			}
		})
	}
}

func TestClassifyEdgeNeighbors(t *testing.T) {
	rows := []PutRow{
		{StrikePrice: 90, Delta: data.Float64(-0.22), CreditPct: data.Float64(0.007)},
		{StrikePrice: 95, Delta: data.Float64(-0.40), CreditPct: data.Float64(0.012)},
		{StrikePrice: 100, Delta: data.Float64(-0.50), CreditPct: data.Float64(0.018)},
	}

	opps, neighbors := classify(rows, 90, defaultParams())

	if len(opps) != 1 || opps[0].StrikePrice != 90 {
		t.Fatalf("opportunities = %+v, want single strike 90", opps)
	}
	// The opportunity sits on the lowest strike, so only the strike
	// above it qualifies as a neighbor.
	if len(neighbors) != 1 || neighbors[0].StrikePrice != 95 {
		t.Fatalf("neighbors = %+v, want single strike 95", neighbors)
	}
}
