package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	exportapp "demandinsights/internal/export/application"
	exportdomain "demandinsights/internal/export/domain"
	insightsapp "demandinsights/internal/insights/application"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// maxBodyBytes taille maximale d'un corps de requête (jeux de lignes inclus)
const maxBodyBytes = 64 << 20

// Handlers expose le moteur d'analyse en JSON sur HTTP
type Handlers struct {
	engine   *insightsapp.Engine
	exporter *exportapp.ResultExporter
	logger   *zap.Logger
}

// NewHandlers crée une nouvelle instance des handlers V1
func NewHandlers(engine *insightsapp.Engine, exporter *exportapp.ResultExporter, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{engine: engine, exporter: exporter, logger: logger}
}

// Register enregistre les routes de l'API V1 sur mux
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/v1/segments", h.Segments)
	mux.HandleFunc("POST /api/v1/forecast", h.Forecast)
	mux.HandleFunc("POST /api/v1/price-elasticity", h.PriceElasticity)
	mux.HandleFunc("POST /api/v1/price-optimization", h.PriceOptimization)
	mux.HandleFunc("POST /api/v1/clv", h.CLV)
	mux.HandleFunc("POST /api/v1/churn", h.Churn)
	mux.HandleFunc("POST /api/v1/at-risk-customers", h.AtRiskCustomers)
	mux.HandleFunc("POST /api/v1/customer-overview", h.CustomerOverview)
}

// Health handler pour GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Segments handler pour POST /api/v1/segments (?format=csv: affectations en CSV)
func (h *Handlers) Segments(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.Segments, exportdomain.SegmentsTable)
}

// Forecast handler pour POST /api/v1/forecast
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.Forecast, exportdomain.ForecastTable)
}

// PriceElasticity handler pour POST /api/v1/price-elasticity
func (h *Handlers) PriceElasticity(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.Elasticity, exportdomain.ElasticityTable)
}

// PriceOptimization handler pour POST /api/v1/price-optimization (JSON uniquement)
func (h *Handlers) PriceOptimization(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.OptimizePrice, nil)
}

// CLV handler pour POST /api/v1/clv
func (h *Handlers) CLV(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.CLV, exportdomain.CLVTable)
}

// Churn handler pour POST /api/v1/churn
func (h *Handlers) Churn(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.Churn, exportdomain.ChurnTable)
}

// AtRiskCustomers handler pour POST /api/v1/at-risk-customers
func (h *Handlers) AtRiskCustomers(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.AtRisk, nil)
}

// CustomerOverview handler pour POST /api/v1/customer-overview
func (h *Handlers) CustomerOverview(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.engine.CustomerOverview, nil)
}

// ============================================================================
// DÉCODAGE, EXÉCUTION, RÉPONSE
//
// Format de sortie vérifié avant tout calcul, corps JSON strict (champs inconnus
// refusés), exécution sous le contexte de la requête HTTP, puis JSON ou CSV selon
// ?format=. Les erreurs typées du moteur sont traduites en codes HTTP par statusFor.
// ============================================================================
func serve[Req, Resp any](
	h *Handlers,
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, req Req) (*Resp, error),
	table func(*Resp) exportdomain.Table,
) {
	format := r.URL.Query().Get("format")
	switch {
	case format == "" || format == "json":
	case format == "csv" && table == nil:
		h.fail(w, r, shareddomain.NewValidationError("format", "csv is not available for this endpoint"))
		return
	case format != "csv":
		h.fail(w, r, shareddomain.NewValidationError("format", "expected json or csv"))
		return
	}

	var req Req
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.fail(w, r, shareddomain.NewValidationError("body", err.Error()))
		return
	}

	resp, err := op(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if format != "csv" {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	t := table(resp)
	data, err := h.exporter.ExportCSV(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", t.Kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// errorBody corps JSON des réponses en erreur
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: sharedinfra.Outcome(err)})
}

// statusFor Validation 400, DataInsufficient 422, ModelTraining 500, Timeout 504
func statusFor(err error) int {
	switch {
	case errors.Is(err, shareddomain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shareddomain.ErrDataInsufficient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shareddomain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
