// Package handlers exposes the selection engine over HTTP. Handlers are
// a thin boundary: they validate the request, call the provider and the
// strategy core, and serialize the result.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/contactkeval/put-finder/internal/config"
	"github.com/contactkeval/put-finder/internal/data"
	"github.com/contactkeval/put-finder/internal/logger"
	"github.com/contactkeval/put-finder/internal/strategy"
)

// OptionsHandler handles option chain and candidate selection requests.
type OptionsHandler struct {
	provider data.Provider
	cfg      *config.Config
}

// NewOptionsHandler creates the handler backed by the active provider.
func NewOptionsHandler(provider data.Provider, cfg *config.Config) *OptionsHandler {
	return &OptionsHandler{provider: provider, cfg: cfg}
}

// RootHandler reports service status and the active data provider.
func (h *OptionsHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"message":       "Put Opportunity Finder backend is running",
		"data_provider": h.provider.Name(),
	})
}

// HealthHandler is a minimal liveness probe.
func (h *OptionsHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// simpleChainRow is one row of the simplified chain debugging endpoint.
type simpleChainRow struct {
	Underlying     string   `json:"underlying"`
	OptionTicker   string   `json:"option_ticker"`
	ContractType   string   `json:"contract_type"`
	ExpirationDate string   `json:"expiration_date"`
	StrikePrice    float64  `json:"strike_price"`
	Bid            *float64 `json:"bid"`
	Ask            *float64 `json:"ask"`
	PutMid         *float64 `json:"put_mid"`
	Last           *float64 `json:"last"`
	Volume         *int64   `json:"volume"`
	OpenInterest   *int64   `json:"open_interest"`
	Delta          *float64 `json:"delta"`
	Gamma          *float64 `json:"gamma"`
	Theta          *float64 `json:"theta"`
	Vega           *float64 `json:"vega"`
	IV             *float64 `json:"iv"`
	GreeksSource   string   `json:"greeks_source"`
}

// SimpleChainHandler returns one side of the chain with computed mids.
// Debugging endpoint, provider-agnostic.
func (h *OptionsHandler) SimpleChainHandler(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	contractType := strings.ToLower(r.URL.Query().Get("contract_type"))
	expirationDate := r.URL.Query().Get("expiration_date")

	if contractType != "call" && contractType != "put" {
		writeError(w, http.StatusBadRequest, "contract_type must be 'call' or 'put'")
		return
	}

	contracts, err := h.provider.GetOptionChain(ticker, expirationDate)
	if err != nil {
		logger.Errorf("chain fetch failed: %v", err)
		writeError(w, http.StatusBadGateway, "could not fetch option chain: "+err.Error())
		return
	}

	rows := []simpleChainRow{}
	for i := range contracts {
		c := &contracts[i]
		if c.OptionType != contractType {
			continue
		}
		rows = append(rows, simpleChainRow{
			Underlying:     c.Underlying,
			OptionTicker:   c.OptionTicker,
			ContractType:   c.OptionType,
			ExpirationDate: c.Expiry.Format("2006-01-02"),
			StrikePrice:    c.Strike,
			Bid:            c.Bid,
			Ask:            c.Ask,
			PutMid:         midOf(c),
			Last:           c.Last,
			Volume:         c.Volume,
			OpenInterest:   c.OpenInterest,
			Delta:          c.Delta,
			Gamma:          c.Gamma,
			Theta:          c.Theta,
			Vega:           c.Vega,
			IV:             c.ImpliedVol,
			GreeksSource:   c.GreeksSource,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "OK",
		"count":   len(rows),
		"options": rows,
	})
}

// CandidatesHandler runs the rolling short PUT selection for one ticker
// and expiration. Every strategy parameter can be overridden via query
// string; unspecified parameters fall back to the process defaults.
func (h *OptionsHandler) CandidatesHandler(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	expirationDate := r.URL.Query().Get("expiration_date")
	if expirationDate == "" {
		writeError(w, http.StatusBadRequest, "expiration_date is required")
		return
	}

	params := strategy.Parameters{
		DeltaMin:        floatQuery(r, "delta_min", h.cfg.Rolling.DeltaMin),
		DeltaMax:        floatQuery(r, "delta_max", h.cfg.Rolling.DeltaMax),
		BandWindow:      floatQuery(r, "band_window", h.cfg.Rolling.BandWindow),
		CreditMinPct:    floatQuery(r, "credit_min_pct", h.cfg.Rolling.CreditMinPct),
		CreditMaxPct:    floatQuery(r, "credit_max_pct", h.cfg.Rolling.CreditMaxPct),
		RelaxedFallback: boolQuery(r, "relaxed", false),
	}

	contracts, err := h.provider.GetOptionChain(ticker, expirationDate)
	if err != nil {
		logger.Errorf("chain fetch failed: %v", err)
		writeError(w, http.StatusBadGateway, "could not fetch option chain: "+err.Error())
		return
	}

	result, err := strategy.SelectCandidates(contracts, ticker, expirationDate, params, time.Now().UTC())
	if err != nil {
		if errors.Is(err, strategy.ErrNoATMEstimate) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Errorf("selection failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CORSMiddleware allows the configured browser origins to call the API.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := map[string]bool{}
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "*")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func midOf(c *data.OptionContract) *float64 {
	if c.Bid != nil && c.Ask != nil && *c.Bid > 0 && *c.Ask > 0 {
		mid := 0.5 * (*c.Bid + *c.Ask)
		return &mid
	}
	if c.Last != nil && *c.Last > 0 {
		return c.Last
	}
	return nil
}

func floatQuery(r *http.Request, name string, defaultValue float64) float64 {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func boolQuery(r *http.Request, name string, defaultValue bool) bool {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
