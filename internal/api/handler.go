package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/customer"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/risk"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/scoring"
	"github.com/opensource-finance/shrike/internal/velocity"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	assessor     *risk.Assessor
	engine       *rules.Engine
	scorer       *scoring.Scorer
	customers    *customer.Service
	velocity     *velocity.Service
	snapshotPath string
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	assessor *risk.Assessor,
	engine *rules.Engine,
	scorer *scoring.Scorer,
	customers *customer.Service,
	vel *velocity.Service,
	snapshotPath string,
	version string,
) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		assessor:     assessor,
		engine:       engine,
		scorer:       scorer,
		customers:    customers,
		velocity:     vel,
		snapshotPath: snapshotPath,
		version:      version,
	}
}

// Assess handles POST /assess requests: score one event synchronously.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed JSON body",
		})
		return
	}

	event := req.ToEvent(tenantID)
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	assessment, err := h.assessor.Assess(ctx, event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	assessment.Metadata.TraceID = traceID

	// Persistence is best effort; the caller already has the verdict.
	if h.repo != nil {
		if err := h.repo.SaveEvent(ctx, tenantID, event); err != nil {
			slog.Error("failed to save event", "event_id", event.ID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "assessment_id", assessment.ID, "error", err)
		}
	}
	if h.velocity != nil {
		h.velocity.Record(ctx, tenantID, event.CustomerID)
	}

	if h.bus != nil {
		payload, _ := json.Marshal(assessment)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessment, payload); err != nil {
			slog.Error("failed to publish assessment", "assessment_id", assessment.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetAssessment retrieves a stored assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no repository configured",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// CustomerRiskProfile returns the stored behavior profile for a customer
// together with their most recent assessments.
func (h *Handler) CustomerRiskProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	cc, err := h.customers.Context(ctx, tenantID, customerID)
	if err != nil || cc == nil {
		cc = domain.DefaultCustomerContext(customerID)
	}

	var recent []*domain.RiskAssessment
	if h.repo != nil {
		recent, err = h.repo.ListAssessmentsByCustomer(ctx, tenantID, customerID, 20)
		if err != nil {
			slog.Error("failed to list assessments", "customer_id", customerID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customer":          cc,
		"recentAssessments": recent,
	})
}

// AnalyticsSummary aggregates assessment outcomes over a period.
// Defaults to the last 24 hours when from/to are absent.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no repository configured",
		})
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "from must be RFC3339",
			})
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "to must be RFC3339",
			})
			return
		}
		to = t
	}

	summary, err := h.repo.SummarizeAssessments(ctx, tenantID, from, to)
	if err != nil {
		slog.Error("failed to summarize assessments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to summarize assessments",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListRules returns the rules currently loaded in the engine, which may
// lag the database until POST /rules/reload runs.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetRule looks up one loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Expression    string  `json:"expression"`
	Factor        string  `json:"factor"`
	Severity      string  `json:"severity,omitempty"`
	Impact        float64 `json:"impact,omitempty"`
	ForceDecision string  `json:"forceDecision,omitempty"`
	Enabled       bool    `json:"enabled"`
}

// CreateRule validates, stores, and loads a new risk rule. Rules are
// stored under the global tenant so every tenant's assessments see them.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed JSON body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression must be set",
		})
		return
	}
	if req.Factor == "" {
		req.Factor = req.ID
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityMedium
	}
	if req.Impact <= 0 {
		req.Impact = 0.1
	}

	rule := &domain.RiskRule{
		ID:            req.ID,
		TenantID:      GlobalTenantID,
		Name:          req.Name,
		Description:   req.Description,
		Version:       "1.0.0",
		Expression:    req.Expression,
		Factor:        req.Factor,
		Severity:      req.Severity,
		Impact:        req.Impact,
		ForceDecision: req.ForceDecision,
		Enabled:       req.Enabled,
	}

	// Loading doubles as validation: a rule that does not compile is
	// rejected before anything is persisted.
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "expression rejected: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRiskRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("risk rule persist failed", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "could not persist rule",
			})
			return
		}
	}

	slog.Info("risk rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "rule created and active",
	})
}

// ReloadRules swaps the engine's rule set for the current database
// contents without a restart. A failed reload leaves the previous set
// active.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no repository configured",
		})
		return
	}

	dbRules, err := h.repo.ListRiskRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("rule list query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "could not load rules",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("rule reload rejected", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "reload failed: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded",
		"count":   len(dbRules),
	})
}

// TrainModelsRequest is the request body for POST /models/train.
type TrainModelsRequest struct {
	Samples []scoring.TrainingSample `json:"samples"`
}

// TrainModels fits a new model snapshot from labeled samples, persists it,
// and swaps it in atomically. In-flight assessments keep scoring against
// the snapshot they started with.
func (h *Handler) TrainModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req TrainModelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed JSON body",
		})
		return
	}

	if len(req.Samples) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "samples are required",
		})
		return
	}

	if err := h.scorer.Train(ctx, req.Samples); err != nil {
		slog.Error("training failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "training failed: " + err.Error(),
		})
		return
	}

	if h.snapshotPath != "" {
		if err := h.scorer.Save(h.snapshotPath); err != nil {
			slog.Error("failed to persist snapshot", "path", h.snapshotPath, "error", err)
		}
	}

	info := h.scorer.Snapshot().Info()

	if h.bus != nil {
		payload, _ := json.Marshal(info)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicModelSwapped, payload); err != nil {
			slog.Error("failed to publish model swap", "error", err)
		}
	}

	slog.Info("models trained",
		"samples", len(req.Samples),
		"snapshot_version", info.Version,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "models trained and swapped",
		"snapshot": info,
	})
}

// GetModels returns metadata about the active model snapshot.
func (h *Handler) GetModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scorer.Snapshot().Info())
}

// ReloadModels reloads the model snapshot from disk.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	if h.snapshotPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "snapshot path not configured",
		})
		return
	}

	if err := h.scorer.Load(h.snapshotPath); err != nil {
		slog.Error("failed to reload snapshot", "path", h.snapshotPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload snapshot: " + err.Error(),
		})
		return
	}

	info := h.scorer.Snapshot().Info()
	slog.Info("model snapshot reloaded", "snapshot_version", info.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "snapshot reloaded",
		"snapshot": info,
	})
}

// Health reports "healthy" or "degraded" based on dependency pings.
// The endpoint itself always answers 200; load balancers read the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
