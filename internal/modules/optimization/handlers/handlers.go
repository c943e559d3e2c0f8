// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/frontier/internal/metrics"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prediction"
	"github.com/aristath/frontier/pkg/formulas"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	// RunIDHeader carries the id stamped on every log line of a request.
	RunIDHeader = "X-Run-ID"

	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling file parts to disk.
	multipartMemory = 8 << 20
)

// Config holds the request limits and defaults of the optimization handlers
type Config struct {
	MaxUploadBytes int64
	DefaultAlpha   float64
	AllowedOrigins []string // websocket origin check; empty allows same-origin only
}

// Handler handles portfolio optimization HTTP requests
type Handler struct {
	service *optimization.FrontierService
	cfg     Config
	log     zerolog.Logger
}

// NewHandler creates a new portfolio optimization handler
func NewHandler(service *optimization.FrontierService, cfg Config, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// PairResponse is the two-asset allocation answer.
type PairResponse struct {
	Predictions    map[string][]float64     `json:"predictions"`
	GraphData      []map[string]interface{} `json:"graphData"`
	OptimalWeights map[string]float64       `json:"optimalWeights"`
}

// HandleEfficientFrontier handles POST /efficient_frontier
func (h *Handler) HandleEfficientFrontier(w http.ResponseWriter, r *http.Request) {
	log := h.runLogger(w)

	if !h.parseMultipart(w, r, log) {
		metrics.FrontierRequestsTotal.WithLabelValues("efficient_frontier", "rejected").Inc()
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "No files provided")
		return
	}

	alpha, err := parseFraction(r.FormValue("alpha"), h.cfg.DefaultAlpha)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid alpha value")
		return
	}

	if len(files) < optimization.MinAssets || len(files) > optimization.MaxAssets {
		h.writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Number of files must be between %d and %d", optimization.MinAssets, optimization.MaxAssets))
		return
	}

	series := make([]optimization.PriceSeries, 0, len(files))
	for _, fh := range files {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
			h.writeError(w, r, http.StatusBadRequest, "Only CSV files are supported")
			return
		}

		prices, err := readUpload(fh)
		if err != nil {
			log.Debug().Err(err).Str("file", fh.Filename).Msg("Rejected CSV upload")
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Error reading CSV file: %v", err))
			return
		}
		series = append(series, prices)
	}

	model, err := optimization.BuildReturnModel(series)
	if err != nil {
		h.writeComputeError(w, r, log, "efficient_frontier", err)
		return
	}

	log.Info().
		Int("assets", model.Assets()).
		Int("observations", model.Observations).
		Int("dropped_rows", model.Dropped).
		Float64("alpha", alpha).
		Msg("Computing efficient frontier")

	result, err := h.service.Compute(r.Context(), model, alpha)
	if err != nil {
		h.writeComputeError(w, r, log, "efficient_frontier", err)
		return
	}

	metrics.FrontierRequestsTotal.WithLabelValues("efficient_frontier", "ok").Inc()
	h.writeResponse(w, r, http.StatusOK, result)
}

// HandlePortfolioOptimization handles POST /portfolio_optimization
func (h *Handler) HandlePortfolioOptimization(w http.ResponseWriter, r *http.Request) {
	log := h.runLogger(w)

	if !h.parseMultipart(w, r, log) {
		metrics.FrontierRequestsTotal.WithLabelValues("portfolio_optimization", "rejected").Inc()
		return
	}
	defer r.MultipartForm.RemoveAll()

	sector1 := formValueOr(r, "sector1", "sector1")
	sector2 := formValueOr(r, "sector2", "sector2")

	riskFactor, err := parseFraction(r.FormValue("riskFactor"), optimization.DefaultAlpha)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid riskFactor value")
		return
	}

	file1 := firstFile(r.MultipartForm, "csvFile1")
	file2 := firstFile(r.MultipartForm, "csvFile2")
	if file1 == nil || file2 == nil {
		h.writeError(w, r, http.StatusBadRequest, "Both CSV files are required")
		return
	}

	var series [2]optimization.PriceSeries
	for i, fh := range []*multipart.FileHeader{file1, file2} {
		prices, err := readUpload(fh)
		if errors.Is(err, errMissingPriceColumn) {
			ordinal := [2]string{"First", "Second"}[i]
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s CSV file must contain a %q column", ordinal, PriceColumn))
			return
		}
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Error reading CSV files: %v", err))
			return
		}
		series[i] = prices
	}

	pm, err := optimization.BuildPairModel(series[0], series[1])
	if err != nil {
		h.writeComputeError(w, r, log, "portfolio_optimization", err)
		return
	}

	optimal, err := h.service.OptimizePair(r.Context(), pm, riskFactor)
	if err != nil {
		h.writeComputeError(w, r, log, "portfolio_optimization", err)
		return
	}

	graph := pm.GraphPoints(optimization.PairGraphPoints)
	graphData := make([]map[string]interface{}, len(graph))
	for i, p := range graph {
		// Returns and volatilities as percentages, keyed by the sector labels
		graphData[i] = map[string]interface{}{
			"name":  fmt.Sprintf("Portfolio %d", int(p.Weight*100)),
			sector1: p.Return * 100,
			sector2: p.Volatility * 100,
		}
	}

	response := PairResponse{
		Predictions: map[string][]float64{
			"sector1": prediction.Forecast(pm.Prices[0]),
			"sector2": prediction.Forecast(pm.Prices[1]),
		},
		GraphData: graphData,
		OptimalWeights: map[string]float64{
			"sector1": formulas.Percent(optimal.Weights[0]),
			"sector2": formulas.Percent(optimal.Weights[1]),
		},
	}

	log.Info().
		Str("sector1", sector1).
		Str("sector2", sector2).
		Float64("risk_factor", riskFactor).
		Floats64("weights", optimal.Weights).
		Msg("Two-asset allocation computed")

	metrics.FrontierRequestsTotal.WithLabelValues("portfolio_optimization", "ok").Inc()
	h.writeResponse(w, r, http.StatusOK, response)
}

// HandlePreflight answers bare OPTIONS requests with an empty object
func (h *Handler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// runLogger assigns a run id to the request and returns a logger carrying it
func (h *Handler) runLogger(w http.ResponseWriter) zerolog.Logger {
	runID := uuid.New().String()
	w.Header().Set(RunIDHeader, runID)
	return h.log.With().Str("run_id", runID).Logger()
}

// parseMultipart enforces the upload limit and parses the form. It writes
// the error response itself and reports whether handling may continue.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, log zerolog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		log.Warn().Int64("limit", tooLarge.Limit).Msg("Upload exceeds size limit")
		h.writeResponse(w, r, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "File too large",
			"details": fmt.Sprintf("The submitted file exceeds the maximum allowed size of %d bytes", tooLarge.Limit),
		})
		return false
	}

	h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err))
	return false
}

// writeComputeError maps engine errors onto HTTP statuses
func (h *Handler) writeComputeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, endpoint string, err error) {
	switch {
	case errors.Is(err, optimization.ErrMalformedInput), errors.Is(err, optimization.ErrInsufficientData):
		log.Debug().Err(err).Msg("Rejected optimization input")
		metrics.FrontierRequestsTotal.WithLabelValues(endpoint, "rejected").Inc()
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		log.Info().Err(err).Msg("Client went away during optimization")
		metrics.FrontierRequestsTotal.WithLabelValues(endpoint, "cancelled").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Msg("Optimization ran past the request deadline")
		metrics.FrontierRequestsTotal.WithLabelValues(endpoint, "timeout").Inc()
		h.writeError(w, r, http.StatusGatewayTimeout, "Request timed out")
	default:
		log.Error().Err(err).Msg("Optimization failed")
		metrics.FrontierRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		h.writeResponse(w, r, http.StatusInternalServerError, map[string]string{
			"error":   "Server error",
			"details": err.Error(),
		})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeResponse(w, r, status, map[string]string{"error": message})
}

// writeResponse encodes data as msgpack when the client asks for it and as
// JSON otherwise
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if !acceptsMsgpack(r) {
		h.writeJSON(w, status, data)
		return
	}

	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)

	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode msgpack response")
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func acceptsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == contentTypeMsgpack || mediaType == "application/x-msgpack" {
			return true
		}
	}
	return false
}

// parseFraction parses an optional form value that must lie in [0, 1]
func parseFraction(raw string, defaultValue float64) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if err := optimization.ValidateAlpha(value); err != nil {
		return 0, err
	}
	return value, nil
}

func formValueOr(r *http.Request, key, defaultValue string) string {
	if value := strings.TrimSpace(r.FormValue(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (optimization.PriceSeries, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return readPriceColumn(f)
}
