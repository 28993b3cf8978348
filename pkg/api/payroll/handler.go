// Package payroll exposes the thin HTTP surface over the payroll
// core: run lifecycle operations, progress polling, bulk import
// phases and backpay previews. Long jobs run on background goroutines
// and report through the shared progress store.
package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ekowhinson/HRMS-sub001/pkg/core/backpay"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/importer"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/payout"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/run"
	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/progress"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// Handler holds the core services the endpoints dispatch to.
type Handler struct {
	Orch     *run.Orchestrator
	Backpay  *backpay.Engine
	Importer *importer.Service
	Payout   *payout.Service
}

// NewHandler wires the handler over already-constructed services.
func NewHandler(orch *run.Orchestrator, bp *backpay.Engine, imp *importer.Service, po *payout.Service) *Handler {
	return &Handler{Orch: orch, Backpay: bp, Importer: imp, Payout: po}
}

// Routes builds the chi router for the payroll surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(tenantMiddleware)

	r.Post("/periods/{periodID}/runs", h.createRun)
	r.Post("/periods/{periodID}/reopen", h.reopenPeriod)
	r.Post("/periods/{periodID}/close", h.closePeriod)

	r.Post("/runs/{runID}/compute", h.computeRun)
	r.Post("/runs/{runID}/approve", h.approveRun)
	r.Post("/runs/{runID}/reject", h.rejectRun)
	r.Post("/runs/{runID}/pay", h.payRun)
	r.Post("/runs/{runID}/reset", h.resetRun)
	r.Get("/runs/{runID}/progress", h.runProgress)
	r.Get("/runs/{runID}/bank-advice", h.bankAdvice)
	r.Get("/runs/{runID}/payslips/{employeeID}", h.payslip)

	r.Post("/imports", h.analyseImport)
	r.Post("/imports/{sessionID}/preview", h.previewImport)
	r.Post("/imports/{sessionID}/confirm", h.confirmImport)
	r.Post("/imports/{sessionID}/execute", h.executeImport)
	r.Get("/imports/{sessionID}/progress", h.importProgress)
	r.Get("/imports/{sessionID}/rows", h.importRows)

	r.Post("/backpay/preview", h.previewBackpay)
	r.Post("/backpay", h.createBackpay)
	r.Post("/backpay/{requestID}/approve", h.approveBackpay)
	r.Get("/backpay/candidates", h.backpayCandidates)

	return r
}

// tenantMiddleware stamps the tenant from the X-Tenant-ID header onto
// the request context. Authentication happens upstream.
func tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-ID")
		if tenant == "" {
			writeJSON(w, http.StatusBadRequest, errBody("missing X-Tenant-ID header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(store.WithTenant(r.Context(), tenant)))
	})
}

type actorBody struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	periodID, ok := pathUUID(w, r, "periodID")
	if !ok {
		return
	}
	created, err := h.Orch.CreateRun(r.Context(), periodID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) computeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	var body actorBody
	decodeBody(r, &body)

	// The job outlives the request; only the tenant carries over.
	jobCtx := store.WithTenant(context.Background(), store.TenantID(r.Context()))
	go func() {
		if err := h.Orch.Compute(jobCtx, runID, body.Actor); err != nil {
			log.Error().Err(err).Str("run", runID.String()).Msg("run compute failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":       runID.String(),
		"progress_key": progress.RunKey(runID.String()),
	})
}

func (h *Handler) approveRun(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Orch.Approve)
}

func (h *Handler) payRun(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Orch.ProcessPayment)
}

func (h *Handler) resetRun(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Orch.ResetToDraft)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, string) error) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	var body actorBody
	decodeBody(r, &body)
	if err := op(r.Context(), runID, body.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) rejectRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	var body actorBody
	decodeBody(r, &body)
	if err := h.Orch.Reject(r.Context(), runID, body.Actor, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reopenBody struct {
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
	Force     bool   `json:"force"`
	ResetRuns bool   `json:"reset_runs"`
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	periodID, ok := pathUUID(w, r, "periodID")
	if !ok {
		return
	}
	var body reopenBody
	decodeBody(r, &body)
	err := h.Orch.Reopen(r.Context(), periodID, run.ReopenInput{
		Force:     body.Force,
		Reason:    body.Reason,
		ResetRuns: body.ResetRuns,
		Actor:     body.Actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	periodID, ok := pathUUID(w, r, "periodID")
	if !ok {
		return
	}
	var body actorBody
	decodeBody(r, &body)
	if err := h.Orch.Close(r.Context(), periodID, body.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) runProgress(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	h.writeProgress(w, progress.RunKey(runID.String()))
}

func (h *Handler) importProgress(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	h.writeProgress(w, progress.ImportKey(sessionID.String()))
}

func (h *Handler) writeProgress(w http.ResponseWriter, key string) {
	rec, found := h.Orch.Progress().Get(key)
	if !found {
		rec, found = h.Importer.Progress().Get(key)
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) bankAdvice(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	files, err := h.Payout.BankAdvice(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	type adviceOut struct {
		Bank        string `json:"bank"`
		FileName    string `json:"file_name"`
		Records     int    `json:"records"`
		TotalAmount string `json:"total_amount"`
		Content     string `json:"content"`
	}
	out := make([]adviceOut, len(files))
	for i, f := range files {
		out[i] = adviceOut{
			Bank:        f.Bank,
			FileName:    f.FileName,
			Records:     f.Records,
			TotalAmount: f.TotalAmount.StringFixed(2),
			Content:     string(f.Content),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) payslip(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "runID")
	if !ok {
		return
	}
	employeeID, ok := pathUUID(w, r, "employeeID")
	if !ok {
		return
	}
	slip, err := h.Payout.BuildPayslipData(r.Context(), runID, employeeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slip)
}

type analyseBody struct {
	FilePath   string            `json:"file_path"`
	FileName   string            `json:"file_name"`
	EntityType string            `json:"entity_type,omitempty"`
	Mode       string            `json:"mode,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Actor      string            `json:"actor,omitempty"`
}

func (h *Handler) analyseImport(w http.ResponseWriter, r *http.Request) {
	var body analyseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid request body"))
		return
	}
	session, err := h.Importer.Analyse(r.Context(), importer.AnalyseInput{
		FilePath:   body.FilePath,
		FileName:   body.FileName,
		EntityType: models.ImportEntityType(body.EntityType),
		Mode:       models.ImportMode(body.Mode),
		Params:     body.Params,
		Actor:      body.Actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) previewImport(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	session, err := h.Importer.Preview(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) confirmImport(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	if err := h.Importer.Confirm(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) executeImport(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	jobCtx := store.WithTenant(context.Background(), store.TenantID(r.Context()))
	go func() {
		if err := h.Importer.Execute(jobCtx, sessionID); err != nil {
			log.Error().Err(err).Str("session", sessionID.String()).Msg("import execute failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id":   sessionID.String(),
		"progress_key": progress.ImportKey(sessionID.String()),
	})
}

func (h *Handler) importRows(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	rows, err := h.Importer.PreviewRows(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type backpayBody struct {
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason"`
	Actor      string `json:"actor,omitempty"`
}

func (b *backpayBody) toInput() (backpay.CalcInput, error) {
	var in backpay.CalcInput
	employeeID, err := uuid.Parse(b.EmployeeID)
	if err != nil {
		return in, errors.New("invalid employee_id")
	}
	from, err := time.Parse("2006-01-02", b.From)
	if err != nil {
		return in, errors.New("invalid from date, expected YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", b.To)
	if err != nil {
		return in, errors.New("invalid to date, expected YYYY-MM-DD")
	}
	in.EmployeeID = employeeID
	in.From = from
	in.To = to
	in.Reason = b.Reason
	return in, nil
}

func (h *Handler) previewBackpay(w http.ResponseWriter, r *http.Request) {
	var body backpayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid request body"))
		return
	}
	in, err := body.toInput()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	calc, err := h.Backpay.Calculate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *Handler) createBackpay(w http.ResponseWriter, r *http.Request) {
	var body backpayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid request body"))
		return
	}
	in, err := body.toInput()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	req, err := h.Backpay.CreateRequest(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) approveBackpay(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathUUID(w, r, "requestID")
	if !ok {
		return
	}
	var body actorBody
	decodeBody(r, &body)
	if err := h.Backpay.Approve(r.Context(), requestID, body.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) backpayCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.Backpay.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody tolerates an empty body; operations default the actor.
func decodeBody(r *http.Request, v interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var illegal *run.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		writeJSON(w, http.StatusConflict, errBody(err.Error()))
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err.Error()))
	default:
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}
