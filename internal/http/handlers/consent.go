package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/config"
	"github.com/nutriscan/nutriscan/internal/domain/consent"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
)

type ConsentStore interface {
	GetByUser(ctx context.Context, userID string) (consent.Consent, error)
	Upsert(ctx context.Context, c consent.Consent) error
}

type ConsentHandler struct {
	store ConsentStore
}

func NewConsentHandler(store ConsentStore) *ConsentHandler {
	return &ConsentHandler{store: store}
}

// Get returns the caller's consent record, creating the default one on first
// access so clients never see a 404 here.
func (h *ConsentHandler) Get(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	c, err := h.loadOrCreate(cctx, userID)

	if err != nil {
		RespondInternal(ctx, "Could not load consent record")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"consent": c})
}

// Update flips the requested consent flags and appends one audit entry per
// change, stamped with the caller's IP and user agent.
func (h *ConsentHandler) Update(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	var req consent.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	c, err := h.loadOrCreate(cctx, userID)

	if err != nil {
		RespondInternal(ctx, "Could not load consent record")
		return
	}

	c.Apply(req, ctx.ClientIP(), ctx.GetHeader("User-Agent"))

	if err := h.store.Upsert(cctx, c); err != nil {
		RespondInternal(ctx, "Could not update consent record")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"consent": c})
}

func (h *ConsentHandler) loadOrCreate(ctx context.Context, userID string) (consent.Consent, error) {
	c, err := h.store.GetByUser(ctx, userID)

	if err == nil {
		return c, nil
	}

	if !errors.Is(err, consent.ErrNotFound) {
		return consent.Consent{}, err
	}

	c = consent.New(userID)

	if err := h.store.Upsert(ctx, c); err != nil {
		return consent.Consent{}, err
	}

	return c, nil
}
