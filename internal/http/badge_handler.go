package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

type badgeService interface {
	Poll(ctx context.Context, tokenID string) (application.BadgeView, error)
	Issue(ctx context.Context, station application.Station, tokenID string) (attendance.BadgeToken, error)
	Reissue(ctx context.Context, tokenID string) (attendance.BadgeToken, error)
	Watch(ctx context.Context, tokenID string, emit func(application.BadgeView) error) error
}

type BadgeHandler struct {
	service   badgeService
	responder responder
	logger    *slog.Logger
}

func NewBadgeHandler(service badgeService, logger *slog.Logger) *BadgeHandler {
	base := defaultLogger(logger)
	return &BadgeHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BadgeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BadgeHandler", operation, attrs...)
}

// Poll handles GET /badges/{token}.
func (h *BadgeHandler) Poll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tokenID, ok := tokenParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTokenID)
		return
	}

	view, err := h.service.Poll(r.Context(), tokenID)
	if err != nil {
		h.log(r.Context(), "Poll", "badge_token", tokenID).ErrorContext(r.Context(), "badge poll failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBadgeViewDTO(view))
}

// Stream handles GET /badges/{token}/stream. It emits a "badge" event on every
// state change and ends once the badge is issued or replaced.
func (h *BadgeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tokenID, ok := tokenParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTokenID)
		return
	}
	logger := h.log(r.Context(), "Stream", "badge_token", tokenID)

	var stream *eventStream
	err := h.service.Watch(r.Context(), tokenID, func(view application.BadgeView) error {
		if stream == nil {
			opened, err := openEventStream(w)
			if err != nil {
				return err
			}
			stream = opened
		}
		return stream.send("badge", toBadgeViewDTO(view))
	})
	switch {
	case err == nil:
		logger.DebugContext(r.Context(), "stream closed")
	case stream == nil:
		logger.ErrorContext(r.Context(), "stream failed to start", "error", err, "error_kind", application.ErrorKind(err))
		if errors.Is(err, errStreamingUnsupported) {
			h.responder.writeError(r.Context(), w, http.StatusInternalServerError, err)
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
	case r.Context().Err() != nil:
		logger.DebugContext(r.Context(), "client went away", "error", err)
	default:
		logger.WarnContext(r.Context(), "stream aborted", "error", err, "error_kind", application.ErrorKind(err))
	}
}

// Issue handles POST /badges/{token}/issue at the info desk.
func (h *BadgeHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tokenID, ok := tokenParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTokenID)
		return
	}
	station, _ := StationFromContext(r.Context())
	logger := h.log(r.Context(), "Issue", "badge_token", tokenID)

	token, err := h.service.Issue(r.Context(), station, tokenID)
	if err != nil {
		logger.ErrorContext(r.Context(), "badge issue failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "badge issued", "registrant_id", token.RegistrantID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"badge": toBadgeDTO(token)})
}

// Reissue handles POST /badges/{token}/reissue from the attendee screen.
func (h *BadgeHandler) Reissue(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tokenID, ok := tokenParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTokenID)
		return
	}
	logger := h.log(r.Context(), "Reissue", "badge_token", tokenID)

	fresh, err := h.service.Reissue(r.Context(), tokenID)
	if err != nil {
		logger.ErrorContext(r.Context(), "badge reissue failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "badge reissued", "replacement_token", fresh.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"badge": toBadgeDTO(fresh)})
}

func tokenParam(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "token"))
	return id, id != ""
}
