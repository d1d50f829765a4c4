package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/config"
	"github.com/nutriscan/nutriscan/internal/domain/assessment"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
)

// reanalyzeCooldown spaces out explicit re-analysis requests per assessment.
const reanalyzeCooldown = 5 * time.Minute

type AssessmentStore interface {
	Create(ctx context.Context, a assessment.Assessment) error
	GetByID(ctx context.Context, id string) (assessment.Assessment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]assessment.Assessment, int, error)
	Update(ctx context.Context, a assessment.Assessment) error
	Delete(ctx context.Context, id string) error
}

// Analyzer is the AI client surface the handler needs. Predict fails loudly
// for the explicit analyze endpoint; AnalyzeWithFallback never fails and
// backs the synchronous create/update path.
type Analyzer interface {
	Predict(ctx context.Context, a *assessment.Assessment) (*assessment.Analysis, error)
	AnalyzeWithFallback(ctx context.Context, a *assessment.Assessment) *assessment.Analysis
}

type AssessmentsHandler struct {
	store    AssessmentStore
	analyzer Analyzer

	mu          sync.Mutex
	lastAnalyze map[string]time.Time // assessment id -> last explicit analyze
}

func NewAssessmentsHandler(store AssessmentStore, analyzer Analyzer) *AssessmentsHandler {
	return &AssessmentsHandler{
		store:       store,
		analyzer:    analyzer,
		lastAnalyze: make(map[string]time.Time),
	}
}

// Create stores the assessment and, when the intake is complete, runs the AI
// analysis inline so the response already carries the result. Incomplete
// payloads stay drafts.
func (h *AssessmentsHandler) Create(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	var req assessment.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	a, err := assessment.NewFromCreateRequest(userID, req)

	if err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	if a.MarkCompletedIfReady() {
		an := h.analyzer.AnalyzeWithFallback(analysisContext(ctx), &a)
		a.AttachAnalysis(an)
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.store.Create(cctx, a); err != nil {
		RespondInternal(ctx, "Could not save assessment")
		return
	}

	RespondData(ctx, http.StatusCreated, gin.H{"assessment": a})
}

func (h *AssessmentsHandler) List(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	limit := intQuery(ctx, "limit", 20, 1, 100)
	offset := intQuery(ctx, "offset", 0, 0, 1<<30)

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	items, total, err := h.store.ListByUser(cctx, userID, limit, offset)

	if err != nil {
		RespondInternal(ctx, "Could not list assessments")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{
		"assessments": items,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *AssessmentsHandler) Get(ctx *gin.Context) {
	a, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"assessment": a})
}

// Update replaces the intake fields. A draft that becomes complete is
// analyzed inline, same as create; an already-analyzed record keeps its
// analysis until re-analyzed explicitly.
func (h *AssessmentsHandler) Update(ctx *gin.Context) {
	a, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	var req assessment.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := a.ApplyUpdate(req); err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	if a.MarkCompletedIfReady() {
		an := h.analyzer.AnalyzeWithFallback(analysisContext(ctx), &a)
		a.AttachAnalysis(an)
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.store.Update(cctx, a); err != nil {
		RespondInternal(ctx, "Could not update assessment")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"assessment": a})
}

func (h *AssessmentsHandler) Delete(ctx *gin.Context) {
	a, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.store.Delete(cctx, a.ID); err != nil {
		if errors.Is(err, assessment.ErrNotFound) {
			RespondNotFound(ctx, "Assessment not found.")
			return
		}

		RespondInternal(ctx, "Could not delete assessment")
		return
	}

	RespondMessage(ctx, http.StatusOK, "Assessment deleted.")
}

// Analyze re-runs the AI prediction on demand. Unlike the create path this
// surfaces upstream failure as 503 instead of silently falling back, so the
// client can tell the difference and retry.
func (h *AssessmentsHandler) Analyze(ctx *gin.Context) {
	a, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	if !a.IsComplete() {
		RespondBadRequest(ctx, "Assessment is incomplete; fill in all fields before analysis.", nil)
		return
	}

	if retryAfter, limited := h.cooldownRemaining(a.ID); limited {
		ctx.Header("Retry-After", strconv.Itoa(retryAfter))
		RespondError(ctx, http.StatusTooManyRequests, "RATE_LIMITED",
			"Analysis was run recently. Please wait before re-analyzing.", nil)
		return
	}

	an, err := h.analyzer.Predict(analysisContext(ctx), &a)

	if err != nil {
		// the cooldown is not started: "try again later" must mean exactly that
		RespondServiceUnavailable(ctx, "AI_UNAVAILABLE", "Analysis service is temporarily unavailable. Please try again later.")
		return
	}

	h.recordAnalyze(a.ID)
	a.AttachAnalysis(an)

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.store.Update(cctx, a); err != nil {
		RespondInternal(ctx, "Could not save analysis")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"assessment": a})
}

// loadOwned fetches the :id assessment and enforces ownership: a record that
// exists but belongs to someone else is a 403, not a 404.
func (h *AssessmentsHandler) loadOwned(ctx *gin.Context) (assessment.Assessment, bool) {
	userID, _ := middlewares.UserIDFromContext(ctx)
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	a, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, assessment.ErrNotFound) {
			RespondNotFound(ctx, "Assessment not found.")
			return assessment.Assessment{}, false
		}

		RespondInternal(ctx, "Could not load assessment")
		return assessment.Assessment{}, false
	}

	if a.UserID != userID {
		RespondForbidden(ctx, "You do not have access to this assessment.")
		return assessment.Assessment{}, false
	}

	return a, true
}

func (h *AssessmentsHandler) cooldownRemaining(id string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.lastAnalyze[id]; ok {
		if elapsed := time.Since(last); elapsed < reanalyzeCooldown {
			return int((reanalyzeCooldown - elapsed).Seconds()), true
		}
	}

	return 0, false
}

// recordAnalyze marks a completed analysis and sweeps entries whose cooldown
// has already lapsed, so the map tracks recent activity only.
func (h *AssessmentsHandler) recordAnalyze(id string) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, last := range h.lastAnalyze {
		if now.Sub(last) >= reanalyzeCooldown {
			delete(h.lastAnalyze, k)
		}
	}

	h.lastAnalyze[id] = now
}

// analysisContext detaches the AI call from the inbound request's
// cancellation. A client that disconnects mid-analysis must not abort the
// upstream call or the persistence write that follows; trace and span values
// still propagate.
func analysisContext(ctx *gin.Context) context.Context {
	return context.WithoutCancel(ctx.Request.Context())
}

func intQuery(ctx *gin.Context, name string, def, min, max int) int {
	raw := ctx.Query(name)

	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)

	if err != nil || v < min {
		return def
	}

	if v > max {
		return max
	}

	return v
}
