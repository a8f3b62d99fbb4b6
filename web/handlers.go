package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/fetchvault/app"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/domain/ratelimit"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps submission and webhook payload sizes.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

type submitBody struct {
	Items          []app.ItemRequest `json:"items"`
	CallbackURL    string            `json:"callback_url"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type itemView struct {
	URL      string `json:"url"`
	TargetID string `json:"target_id,omitempty"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type partView struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
}

type batchView struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []itemView `json:"items"`
	Parts     []partView `json:"parts,omitempty"`
}

func viewOf(b batch.Batch) batchView {
	v := batchView{
		ID:        b.ID,
		Status:    string(b.Status),
		Progress:  batch.AggregateProgress(b),
		CreatedAt: b.CreatedAt,
		Items:     make([]itemView, len(b.Items)),
	}
	for i, item := range b.Items {
		v.Items[i] = itemView{
			URL:      item.URL,
			TargetID: item.TargetID,
			Status:   string(item.Status),
			Progress: item.Progress,
			Error:    item.Error,
		}
	}
	for _, part := range b.Parts {
		v.Parts = append(v.Parts, partView{Index: part.Index, URL: part.Ref, Size: part.Size})
	}
	return v
}

// handleSubmitBatch accepts a batch of download requests.
//
// The idempotency key may come from the Idempotency-Key header or the
// body; the header wins. Cached replays return the original bytes with
// an Idempotent-Replay marker.
func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFrom(r.Context())

	var body submitBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	req := app.SubmitRequest{
		Items:          body.Items,
		CallbackURL:    body.CallbackURL,
		IdempotencyKey: body.IdempotencyKey,
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.admission.Submit(r.Context(), tenant, req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	if result.Replay != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(result.Replay.StatusCode)
		w.Write(result.Replay.Body)
		return
	}

	respBody, err := json.Marshal(viewOf(result.Batch))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to encode response")
		return
	}

	h.admission.CacheResponse(r.Context(), tenant.ID, req.IdempotencyKey,
		http.StatusCreated, respBody)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(respBody)
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var tooMany *app.TooManyItemsError
	var rateErr *app.RateLimitError
	var creditErr *app.InsufficientCreditsError

	switch {
	case errors.Is(err, app.ErrNoItems),
		errors.Is(err, app.ErrMissingURL),
		errors.Is(err, app.ErrInvalidCallback):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, app.ErrInvalidIdemKey):
		writeError(w, http.StatusBadRequest, "invalid_idempotency_key", err.Error())
	case errors.As(err, &tooMany):
		writeError(w, http.StatusBadRequest, "too_many_items", err.Error())
	case errors.As(err, &rateErr):
		h.writeRateLimited(w, rateErr.Result)
	case errors.As(err, &creditErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error": errorBody{Code: "insufficient_credits", Message: err.Error()},
			"credits": map[string]int64{
				"used":      creditErr.Result.Used,
				"available": creditErr.Result.Available,
				"needed":    creditErr.Result.Needed,
				"limit":     creditErr.Result.Limit,
			},
		})
	default:
		h.logger.Error().Err(err).Msg("submission failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) writeRateLimited(w http.ResponseWriter, result ratelimit.CheckResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

	code := "rate_limit_exceeded"
	msg := "rate limit exceeded, retry later"
	if result.Reason == ratelimit.ReasonBlocked {
		code = "temporarily_blocked"
		msg = "temporarily blocked due to sustained errors"
	}
	writeError(w, http.StatusTooManyRequests, code, msg)
}

// handleGetBatch returns a batch snapshot with aggregate progress.
func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFrom(r.Context())
	batchID := chi.URLParam(r, "batchID")

	b, err := h.admission.GetBatch(r.Context(), tenant.ID, batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

// handleGetUsage returns the tenant's usage for the current period.
func (h *Handler) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFrom(r.Context())
	now := h.clock.Now()
	period := credit.PeriodStart(now)

	state, err := h.credits.Usage(r.Context(), tenant.ID, period)
	if err != nil {
		h.logger.Error().Err(err).Msg("usage lookup failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	limits := plan.LimitsFor(tenant.Tier)
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":            string(tenant.Tier),
		"period_start":    period.Format(time.RFC3339),
		"period_end":      credit.PeriodEnd(period).Format(time.RFC3339),
		"credits_used":    state.Used,
		"credits_limit":   limits.CreditsPerMonth,
		"bandwidth_bytes": state.BandwidthBytes,
	})
}

// handleBillingWebhook receives payment provider events. The signature
// header depends on the configured provider.
func (h *Handler) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Signature")
	}

	if err := h.billing.HandleWebhook(r.Context(), payload, signature); err != nil {
		if errors.Is(err, app.ErrBadSignature) {
			writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
			return
		}
		h.logger.Error().Err(err).Msg("billing webhook failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
