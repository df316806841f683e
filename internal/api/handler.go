package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/pipeline"
	"github.com/nidhogg/hippo/internal/store"
)

// StageRunner executes one stage job under the run-lock.
type StageRunner interface {
	Run(ctx context.Context, stage model.Stage, fn pipeline.StageFunc) model.RunResult
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	runner      StageRunner
	stages      map[model.Stage]pipeline.StageFunc
	maintenance map[string]pipeline.StageFunc
	logger      *zap.Logger
}

// NewHandler creates the ops API handler. stages maps each pipeline stage to
// its job; maintenance maps named operations like "rescale" and "recluster".
func NewHandler(st *store.Store, runner StageRunner, stages map[model.Stage]pipeline.StageFunc,
	maintenance map[string]pipeline.StageFunc, logger *zap.Logger) *Handler {
	return &Handler{
		store:       st,
		runner:      runner,
		stages:      stages,
		maintenance: maintenance,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/items", h.ingestItems)
		r.Get("/stages", h.listStages)
		r.Post("/stages/{stage}/run", h.runStage)
		r.Get("/runs", h.listRuns)
		r.Get("/deadletters", h.listDeadLetters)
		r.Post("/nodes/{node}/access", h.recordAccess)
		r.Post("/maintenance/{op}", h.runMaintenance)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ingestItems(w http.ResponseWriter, r *http.Request) {
	var items []model.MemoryItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty item batch"})
		return
	}

	now := time.Now()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		if items[i].ArrivalSeq == 0 {
			items[i].ArrivalSeq = now.UnixNano() + int64(i)
		}
		items[i].Status = model.ItemPending
		items[i].Salience = model.Clamp01(items[i].Salience)
	}

	if err := h.store.UpsertItems(r.Context(), h.store.Pool(), items); err != nil {
		h.logger.Error("item ingest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"ingested": len(items)})
}

type stageStatus struct {
	Stage     model.Stage           `json:"stage"`
	Watermark model.WatermarkRecord `json:"watermark"`
	LastRun   *model.RunResult      `json:"last_run,omitempty"`
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) {
	var statuses []stageStatus
	for _, stage := range model.Stages() {
		wm, err := h.store.GetWatermark(r.Context(), stage)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s := stageStatus{Stage: stage, Watermark: wm}
		runs, err := h.store.ListRuns(r.Context(), stage, 1)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if len(runs) > 0 {
			s.LastRun = &runs[0]
		}
		statuses = append(statuses, s)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) runStage(w http.ResponseWriter, r *http.Request) {
	stage := model.Stage(chi.URLParam(r, "stage"))
	fn, ok := h.stages[stage]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown stage"})
		return
	}

	result := h.runner.Run(r.Context(), stage, fn)
	status := http.StatusOK
	switch result.Status {
	case model.RunAlreadyRunning:
		status = http.StatusConflict
	case model.RunFailed:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	stage := model.Stage(r.URL.Query().Get("stage"))
	runs, err := h.store.ListRuns(r.Context(), stage, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListDeadLetters(r.Context(), 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// recordAccess registers a retrieval hit on a semantic node. The counter
// feeds the frequency term of retrieval scoring and the schematization state;
// the weekly rescale resets counters that fall out of the access window.
func (h *Handler) recordAccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "node")
	node, err := h.store.RecordNodeAccess(r.Context(), id)
	if err != nil {
		h.logger.Error("access record failed", zap.String("node_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if node == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown node"})
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) runMaintenance(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	fn, ok := h.maintenance[op]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown maintenance op"})
		return
	}

	result := h.runner.Run(r.Context(), model.StageSemantic, fn)
	status := http.StatusOK
	switch result.Status {
	case model.RunAlreadyRunning:
		status = http.StatusConflict
	case model.RunFailed:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
