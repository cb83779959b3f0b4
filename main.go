// Package main is the entry point for the gasoradar admission gate.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dashstreaming/gasoradar3/api"
	pgstore "github.com/dashstreaming/gasoradar3/internal/pricestore/postgres"
	"github.com/dashstreaming/gasoradar3/metrics"
	"github.com/dashstreaming/gasoradar3/middleware"
	"github.com/dashstreaming/gasoradar3/types"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	port := flag.Int("p", 8080, "Port to run the HTTP server on")
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	logLevelStr := flag.String("log-level", "info", "Logging level (trace, debug, info, warn, error, fatal, panic)")
	flag.Parse()

	logLevel, err := zerolog.ParseLevel(*logLevelStr)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", *logLevelStr).Msg("Invalid log level provided")
	}
	zerolog.SetGlobalLevel(logLevel)

	log.Info().Str("config_path", *configPath).Msg("Starting admission gate initialization")

	gateway, closer, err := api.NewGatewayFromConfigPath(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Startup failed: error initializing admission gateway")
	}
	defer closer.Close()

	admissionMetrics := metrics.NewAdmissionMetrics(prometheus.DefaultRegisterer)
	admission := middleware.NewAdmissionMiddleware(gateway.Pipeline, admissionMetrics)

	http.HandleFunc("/prices/report", admission.Handle(acceptedHandler, buildPriceReport))
	http.HandleFunc("/reviews", admission.Handle(acceptedHandler, buildReview))
	http.HandleFunc("/prices/current", currentPricesHandler(gateway.Store))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info().Str("address", addr).Msg("Starting HTTP server")
	log.Fatal().Err(http.ListenAndServe(addr, nil)).Str("address", addr).Msg("HTTP server stopped")
}

// buildPriceReport turns a form POST into a price-report submission.
func buildPriceReport(r *http.Request) (*types.Submission, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form data")
	}
	price, err := strconv.ParseFloat(r.PostForm.Get("reported_price"), 64)
	if err != nil || price < 0 {
		return nil, fmt.Errorf("invalid price")
	}
	return &types.Submission{
		Kind:             types.KindPriceReport,
		Identity:         middleware.ClientIP(r),
		AttestationToken: r.PostForm.Get("attestation_token"),
		StationID:        r.PostForm.Get("gas_station_id"),
		FuelType:         r.PostForm.Get("fuel_type"),
		ReportedPrice:    price,
		Region:           r.PostForm.Get("region"),
	}, nil
}

// buildReview turns a form POST into a review submission.
func buildReview(r *http.Request) (*types.Submission, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form data")
	}
	rating, err := strconv.Atoi(r.PostForm.Get("rating"))
	if err != nil {
		return nil, fmt.Errorf("invalid rating")
	}
	return &types.Submission{
		Kind:             types.KindReview,
		Identity:         middleware.ClientIP(r),
		AttestationToken: r.PostForm.Get("attestation_token"),
		StationID:        r.PostForm.Get("gas_station_id"),
		ReviewerName:     r.PostForm.Get("name"),
		Comment:          r.PostForm.Get("comment"),
		Rating:           rating,
	}, nil
}

// acceptedHandler replies once the pipeline has admitted the submission;
// persisting the report itself is the job of the surrounding services.
func acceptedHandler(w http.ResponseWriter, r *http.Request) {
	sub, _ := middleware.SubmissionFromContext(r.Context())
	resp := map[string]interface{}{"accepted": true}
	if sub != nil {
		resp["submission_id"] = sub.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// currentPricesHandler serves the read-side price listing.
func currentPricesHandler(store *pgstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "price listing unavailable"})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := store.CurrentPrices(r.Context(), pgstore.PriceFilter{
			FuelType: r.URL.Query().Get("fuel_type"),
			City:     r.URL.Query().Get("city"),
			State:    r.URL.Query().Get("state"),
			Limit:    limit,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to fetch current prices")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"prices": rows, "total": len(rows)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response body")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
