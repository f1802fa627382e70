package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/contactkeval/put-finder/internal/config"
	"github.com/contactkeval/put-finder/internal/data"
	"github.com/contactkeval/put-finder/internal/handlers"
	"github.com/contactkeval/put-finder/internal/logger"
	"github.com/contactkeval/put-finder/internal/report"
	"github.com/contactkeval/put-finder/internal/strategy"
)

func main() {
	rest := flag.Bool("rest", false, "run as REST server")
	ticker := flag.String("ticker", "", "underlying ticker for one-shot mode")
	expiration := flag.String("expiration", "", "expiration date (YYYY-MM-DD) for one-shot mode")
	relaxed := flag.Bool("relaxed", false, "enable the relaxed classification fallback")
	flag.Parse()

	cfg := config.Load()
	logger.SetVerbosity(cfg.Verbosity)

	prov := data.ResolveProvider(cfg.Provider, cfg.TradierToken)
	logger.Infof("active data provider: %s", prov.Name())

	if *rest {
		optionsHandler := handlers.NewOptionsHandler(prov, cfg)

		r := mux.NewRouter()
		r.Use(handlers.CORSMiddleware(cfg.AllowedOrigins))
		r.HandleFunc("/", optionsHandler.RootHandler).Methods("GET")
		r.HandleFunc("/health", optionsHandler.HealthHandler).Methods("GET")
		r.HandleFunc("/options-chain-simple/{ticker}", optionsHandler.SimpleChainHandler).Methods("GET")
		r.HandleFunc("/rolling-put-candidates/{ticker}", optionsHandler.CandidatesHandler).Methods("GET", "OPTIONS")

		logger.Infof("starting REST server on :%s", cfg.Port)
		log.Fatal(http.ListenAndServe("0.0.0.0:"+cfg.Port, r))
		return
	}

	// one-shot mode: run a single selection and write reports
	if *ticker == "" || *expiration == "" {
		log.Fatal("one-shot mode requires -ticker and -expiration (or pass -rest)")
	}

	start := time.Now()

	contracts, err := prov.GetOptionChain(*ticker, *expiration)
	if err != nil {
		log.Fatalf("fetching chain: %v", err)
	}

	params := strategy.Parameters{
		DeltaMin:        cfg.Rolling.DeltaMin,
		DeltaMax:        cfg.Rolling.DeltaMax,
		BandWindow:      cfg.Rolling.BandWindow,
		CreditMinPct:    cfg.Rolling.CreditMinPct,
		CreditMaxPct:    cfg.Rolling.CreditMaxPct,
		RelaxedFallback: *relaxed,
	}

	res, err := strategy.SelectCandidates(contracts, *ticker, *expiration, params, time.Now().UTC())
	if err != nil {
		log.Fatalf("selection failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReportDir, 0755); err != nil {
		log.Printf("[warn] could not create output dir %s: %v", cfg.ReportDir, err)
	}
	if err := report.WriteJSON(res, cfg.ReportDir); err != nil {
		log.Printf("[warn] writing selection.json: %v", err)
	}
	if err := report.WriteCSV(res, cfg.ReportDir); err != nil {
		log.Printf("[warn] writing candidates.csv: %v", err)
	}
	log.Printf("[done] finished in %v, status=%s opportunities=%d, wrote reports to %s",
		time.Since(start), res.Status, res.Count, cfg.ReportDir)
}
