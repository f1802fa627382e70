// Package report writes one-shot selection results to disk for the CLI
// mode: a JSON dump of the full result and a CSV of the selected rows.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contactkeval/put-finder/internal/strategy"
)

func WriteJSON(res *strategy.Result, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "selection.json"), b, 0644)
}

func WriteCSV(res *strategy.Result, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "candidates.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"type", "option_ticker", "strike_price", "put_mid", "delta", "iv", "greeks_source", "credit_pct", "distance_to_lower_band", "meets_band", "meets_delta", "meets_credit"}
	if err := w.Write(headers); err != nil {
		return err
	}

	writeRow := func(row strategy.PutRow) {
		record := []string{
			row.Type,
			row.OptionTicker,
			fmt.Sprintf("%.2f", row.StrikePrice),
			formatFloat(row.PutMid),
			formatFloat(row.Delta),
			formatFloat(row.IV),
			row.GreeksSource,
			formatFloat(row.CreditPct),
			fmt.Sprintf("%.4f", row.DistanceToLowerBand),
			fmt.Sprintf("%t", row.MeetsBand),
			fmt.Sprintf("%t", row.MeetsDelta),
			fmt.Sprintf("%t", row.MeetsCredit),
		}
		_ = w.Write(record)
	}

	for _, row := range res.Opportunities {
		writeRow(row)
	}
	for _, row := range res.Neighbors {
		writeRow(row)
	}

	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *v)
}
