// Ops HTTP handlers.
//
// This file exposes the operator endpoints:
//   - GET  /health                   (liveness)
//   - GET  /ready                    (database ping)
//   - GET  {base}/state              (conversation phase and candidates)
//   - GET  {base}/commitments        (paginated, ETag support)
//   - POST {base}/triggers/greeting  (run the greeting now)
//   - POST {base}/triggers/sweep     (run one reminder sweep now)
//
// Manual triggers accept an optional Idempotency-Key. The key is claimed as a
// trigger run so a retried request does not greet or sweep twice.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/http/middleware"
	"github.com/psemmelhack/fm-agent/internal/repo"
	"github.com/psemmelhack/fm-agent/internal/services"
	"github.com/psemmelhack/fm-agent/internal/utils"
)

// Trigger names claimed for keyed manual runs.
const (
	TriggerManualGreeting = "manual_greeting"
	TriggerManualSweep    = "manual_sweep"
)

// OpsReader serves the read-only views.
type OpsReader interface {
	State(ctx context.Context) (*domain.ConversationState, error)
	Commitments(ctx context.Context, page, pageSize int) ([]domain.Commitment, int64, error)
}

// Triggers runs the time-driven work on demand.
type Triggers interface {
	Greet(ctx context.Context) error
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// Claimer records a keyed manual run; repo.ErrAlreadyClaimed means the key
// was used before.
type Claimer interface {
	ClaimTriggerRun(ctx context.Context, trigger, key string) error
}

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsFunc returns commitment counters used to build the list ETag.
type StatsFunc func(ctx context.Context) (repo.CommitmentStats, error)

// Deps groups the collaborators of Handlers. Stats is optional; without it
// the commitments list is served without an ETag.
type Deps struct {
	Ops      OpsReader
	Triggers Triggers
	Claims   Claimer
	DB       Pinger
	Stats    StatsFunc

	// ReadyTimeout bounds the database ping. Defaults to 2s.
	ReadyTimeout time.Duration
}

// Handlers groups the ops endpoints.
type Handlers struct {
	d Deps
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	if d.ReadyTimeout <= 0 {
		d.ReadyTimeout = 2 * time.Second
	}
	return &Handlers{d: d}
}

//
// DTOs
//

// StatusResponse is the body of /health, /ready and the trigger endpoints.
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCommitmentsResponse wraps a page of commitments.
type ListCommitmentsResponse struct {
	Commitments []domain.Commitment `json:"commitments"`
	Pagination  Pagination          `json:"pagination"`
}

// SweepResponse reports one manual sweep. Status is "ok", "partial" when some
// reminders were not sent or not marked, or "duplicate" for a reused key.
type SweepResponse struct {
	Status string                `json:"status" example:"ok"`
	Result *services.SweepResult `json:"result,omitempty"`
}

// claim reports whether the handler should proceed. It writes the response
// itself for duplicates and claim failures.
func (h *Handlers) claim(c *gin.Context, trigger string, dup any) bool {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.d.Claims == nil {
		return true
	}
	err := h.d.Claims.ClaimTriggerRun(c.Request.Context(), trigger, key)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repo.ErrAlreadyClaimed):
		ok(c, http.StatusOK, dup)
		return false
	default:
		fail(c, http.StatusInternalServerError, ErrCodeClaimFailed, err.Error())
		return false
	}
}

//
// Handlers
//

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.StatusResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, StatusResponse{Status: "ok"})
}

// Ready godoc
// @ID          ready
// @Summary     Readiness probe
// @Description Pings the database.
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.StatusResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Database unavailable"
// @Router      /ready [get]
func (h *Handlers) Ready(c *gin.Context) {
	if h.d.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.d.ReadyTimeout)
		defer cancel()
		if err := h.d.DB.Ping(ctx); err != nil {
			fail(c, http.StatusServiceUnavailable, ErrCodeNotReady, "database unavailable")
			return
		}
	}
	ok(c, http.StatusOK, StatusResponse{Status: "ready"})
}

// GetState godoc
// @ID          getState
// @Summary     Current conversation state
// @Description Returns the phase, the candidates last presented and when the state last changed.
// @Tags        Conversation
// @Produce     json
// @Success     200  {object}  domain.ConversationState
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /state [get]
func (h *Handlers) GetState(c *gin.Context) {
	st, err := h.d.Ops.State(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStateFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// ListCommitments godoc
// @ID          listCommitments
// @Summary     List commitments (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Commitments
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"commitments:3:1:1791979200:1:20\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCommitmentsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /commitments [get]
func (h *Handlers) ListCommitments(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := utils.ParsePage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort). Pending is part of the tag so a sweep
	// flipping reminder_sent invalidates cached pages.
	if h.d.Stats != nil {
		if st, err := h.d.Stats(ctx); err == nil {
			var ts int64
			if st.LastCreated != nil {
				ts = st.LastCreated.Unix()
			}
			etag := fmt.Sprintf(`W/"commitments:%d:%d:%d:%d:%d"`, st.Total, st.Pending, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.d.Ops.Commitments(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListCommitmentsResponse{
		Commitments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// TriggerGreeting godoc
// @ID          triggerGreeting
// @Summary     Send the greeting now
// @Description Runs the daily greeting immediately, outside the daily claim. With an Idempotency-Key a repeated request returns status "duplicate".
// @Tags        Triggers
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Deduplicates retried requests"  example(outage-2026-10-14)
// @Success     200  {object}  handlers.StatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad Idempotency-Key"
// @Failure     502  {object}  handlers.ErrorResponse  "Greeting failed"
// @Router      /triggers/greeting [post]
func (h *Handlers) TriggerGreeting(c *gin.Context) {
	if !h.claim(c, TriggerManualGreeting, StatusResponse{Status: "duplicate"}) {
		return
	}
	if err := h.d.Triggers.Greet(c.Request.Context()); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeTriggerFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, StatusResponse{Status: "sent"})
}

// TriggerSweep godoc
// @ID          triggerSweep
// @Summary     Run one reminder sweep now
// @Tags        Triggers
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Deduplicates retried requests"
// @Success     200  {object}  handlers.SweepResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad Idempotency-Key"
// @Failure     502  {object}  handlers.ErrorResponse  "Sweep failed"
// @Router      /triggers/sweep [post]
func (h *Handlers) TriggerSweep(c *gin.Context) {
	if !h.claim(c, TriggerManualSweep, SweepResponse{Status: "duplicate"}) {
		return
	}
	res, err := h.d.Triggers.Sweep(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeTriggerFailed, err.Error())
		return
	}
	status := "ok"
	if res.SendFailed > 0 || len(res.MarkFailed) > 0 {
		status = "partial"
	}
	ok(c, http.StatusOK, SweepResponse{Status: status, Result: &res})
}
