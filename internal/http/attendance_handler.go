package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

type attendanceService interface {
	Enroll(ctx context.Context, station application.Station, registrantID string) (application.Enrollment, error)
	Scan(ctx context.Context, params application.ScanParams) (application.ScanResult, error)
	Status(ctx context.Context, registrantID string, at *time.Time) (application.AttendanceSnapshot, error)
	WatchStatus(ctx context.Context, registrantID string, emit func(application.AttendanceSnapshot) error) error
	Log(ctx context.Context, registrantID string) ([]attendance.LogEntry, error)
	Occupants(ctx context.Context, zoneID string) ([]attendance.Record, error)
}

type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	base := defaultLogger(logger)
	return &AttendanceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

type enrollRequest struct {
	RegistrantID string `json:"registrant_id"`
}

type scanRequest struct {
	RegistrantID string `json:"registrant_id"`
	ZoneID       string `json:"zone_id"`
	Action       string `json:"action"`
}

type zoneRequest struct {
	ZoneID string `json:"zone_id"`
}

// Enroll handles POST /registrants.
func (h *AttendanceHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	station, _ := StationFromContext(r.Context())

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Enroll", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode enroll request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Enroll", "registrant_id", req.RegistrantID)
	enrollment, err := h.service.Enroll(r.Context(), station, req.RegistrantID)
	if err != nil {
		logger.ErrorContext(r.Context(), "enrollment failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if enrollment.Created {
		status = http.StatusCreated
		logger.InfoContext(r.Context(), "registrant enrolled", "badge_token", enrollment.Badge.ID)
	}
	h.responder.writeJSON(r.Context(), w, status, enrollmentResponse{
		Record: toRecordDTO(enrollment.Record),
		Badge:  toBadgeDTO(enrollment.Badge),
	})
}

// Scan handles POST /scans. An empty action resolves from the record state.
func (h *AttendanceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Scan", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode scan request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	action := application.ScanAction(strings.TrimSpace(req.Action))
	if action == "" {
		action = application.ScanAuto
	}
	h.scan(w, r, "Scan", req.RegistrantID, req.ZoneID, action)
}

// CheckIn handles POST /attendance/{registrantID}/check-in.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.scanPath(w, r, "CheckIn", application.ScanCheckIn, true)
}

// CheckOut handles POST /attendance/{registrantID}/check-out.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.scanPath(w, r, "CheckOut", application.ScanCheckOut, false)
}

// Switch handles POST /attendance/{registrantID}/switch.
func (h *AttendanceHandler) Switch(w http.ResponseWriter, r *http.Request) {
	h.scanPath(w, r, "Switch", application.ScanSwitch, true)
}

func (h *AttendanceHandler) scanPath(w http.ResponseWriter, r *http.Request, operation string, action application.ScanAction, needsZone bool) {
	registrantID, ok := registrantIDParam(r)
	if !ok {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing registrant id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRegistrantID)
		return
	}
	var req zoneRequest
	if needsZone {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log(r.Context(), operation, "registrant_id", registrantID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode zone request", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}
	h.scan(w, r, operation, registrantID, req.ZoneID, action)
}

func (h *AttendanceHandler) scan(w http.ResponseWriter, r *http.Request, operation, registrantID, zoneID string, action application.ScanAction) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	station, _ := StationFromContext(r.Context())
	logger := h.log(r.Context(), operation, "registrant_id", registrantID, "zone_id", zoneID, "action", string(action))

	result, err := h.service.Scan(r.Context(), application.ScanParams{
		Station:      station,
		RegistrantID: registrantID,
		ZoneID:       zoneID,
		Action:       action,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "scan rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "scan applied", "resolved_action", string(result.Action))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScanResponse(result))
}

// Status handles GET /attendance/{registrantID}. The optional at query
// parameter moves the projection instant.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	registrantID, ok := registrantIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRegistrantID)
		return
	}

	var at *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.log(r.Context(), "Status", "registrant_id", registrantID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid at parameter", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAt)
			return
		}
		at = &parsed
	}

	snapshot, err := h.service.Status(r.Context(), registrantID, at)
	if err != nil {
		h.log(r.Context(), "Status", "registrant_id", registrantID).ErrorContext(r.Context(), "status lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSnapshotDTO(snapshot))
}

// Stream handles GET /attendance/{registrantID}/stream with one "attendance"
// event per projection tick.
func (h *AttendanceHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	registrantID, ok := registrantIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRegistrantID)
		return
	}
	logger := h.log(r.Context(), "Stream", "registrant_id", registrantID)

	var stream *eventStream
	err := h.service.WatchStatus(r.Context(), registrantID, func(snapshot application.AttendanceSnapshot) error {
		if stream == nil {
			opened, err := openEventStream(w)
			if err != nil {
				return err
			}
			stream = opened
		}
		return stream.send("attendance", toSnapshotDTO(snapshot))
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

// Log handles GET /attendance/{registrantID}/log.
func (h *AttendanceHandler) Log(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	registrantID, ok := registrantIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRegistrantID)
		return
	}

	entries, err := h.service.Log(r.Context(), registrantID)
	if err != nil {
		h.log(r.Context(), "Log", "registrant_id", registrantID).ErrorContext(r.Context(), "log lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"entries": toLogEntryDTOs(entries)})
}

// Occupants handles GET /zones/{zoneID}/occupants.
func (h *AttendanceHandler) Occupants(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	zoneID := strings.TrimSpace(chi.URLParam(r, "zoneID"))

	records, err := h.service.Occupants(r.Context(), zoneID)
	if err != nil {
		h.log(r.Context(), "Occupants", "zone_id", zoneID).ErrorContext(r.Context(), "occupant lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]recordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordDTO(rec))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"zone_id": zoneID, "occupants": out})
}

func registrantIDParam(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "registrantID"))
	return id, id != ""
}
