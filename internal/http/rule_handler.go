package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

type ruleService interface {
	PutDailyRule(ctx context.Context, station application.Station, input application.DailyRuleInput) (attendance.DailyRule, error)
	PutRuleSeries(ctx context.Context, station application.Station, input application.RuleSeriesInput) ([]attendance.DailyRule, error)
	GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error)
}

type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	base := defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RuleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RuleHandler", operation, attrs...)
}

// Put handles PUT /rules/{date}. The body date may be omitted; when present it
// must match the path.
func (h *RuleHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	date := strings.TrimSpace(chi.URLParam(r, "date"))
	if _, err := attendance.ParseDate(date); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	var req application.DailyRuleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Put", "date", date, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rule", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if req.Date == "" {
		req.Date = date
	}
	if req.Date != date {
		h.log(r.Context(), "Put", "date", date, "error_kind", "bad_request").ErrorContext(r.Context(), "rule date does not match path", "body_date", req.Date)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	station, _ := StationFromContext(r.Context())
	logger := h.log(r.Context(), "Put", "date", date)
	rule, err := h.service.PutDailyRule(r.Context(), station, req)
	if err != nil {
		logger.ErrorContext(r.Context(), "rule update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "rule stored", "zones", len(rule.Zones))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleDTO(rule))
}

// PutSeries handles POST /rules/series and answers with every stored rule.
func (h *RuleHandler) PutSeries(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req application.RuleSeriesInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "PutSeries", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode rule series", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	station, _ := StationFromContext(r.Context())
	logger := h.log(r.Context(), "PutSeries", "from", req.From, "until", req.Until)
	rules, err := h.service.PutRuleSeries(r.Context(), station, req)
	if err != nil {
		logger.ErrorContext(r.Context(), "rule series update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "rule series stored", "days", len(rules))

	out := make([]application.DailyRuleInput, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

// Get handles GET /rules/{date}.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	date, err := attendance.ParseDate(strings.TrimSpace(chi.URLParam(r, "date")))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	rule, err := h.service.GetDailyRule(r.Context(), date)
	if err != nil {
		h.log(r.Context(), "Get", "date", date.String()).ErrorContext(r.Context(), "rule lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleDTO(rule))
}
