package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

var (
	errBadRequestBody       = errors.New("無効なリクエスト形式です。")
	errInvalidRegistrantID  = errors.New("無効な参加者 ID です。")
	errInvalidTokenID       = errors.New("無効なバッジトークンです。")
	errInvalidDate          = errors.New("日付は YYYY-MM-DD 形式で指定してください。")
	errInvalidAt            = errors.New("at は RFC3339 形式で指定してください。")
	errMissingStationKey    = errors.New("端末 ID と端末キーを指定してください。")
	errStreamingUnsupported = errors.New("ストリーミングに対応していません。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	if pe, ok := attendance.AsPrecondition(err); ok {
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: strings.ToUpper(pe.Code),
			Message:   preconditionMessage(pe.Code),
		})
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "STATION_UNAUTHORIZED",
			Message:   "端末の認証に失敗しました。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, attendance.ErrBadgeExpired):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "BADGE_EXPIRED",
			Message:   "引換券の有効期限が切れています。再発行してください。",
		})
	case errors.Is(err, attendance.ErrBadgeNotExpired):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "BADGE_NOT_EXPIRED",
			Message:   "有効な引換券は再発行できません。",
		})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: localizedStatusMessage(http.StatusConflict)})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			details := localizeValidationErrors(vErr)
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  details,
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func preconditionMessage(code string) string {
	switch code {
	case "already_checked_in":
		return "すでにこのエリアに入場しています。"
	case "not_checked_in":
		return "入場記録がありません。"
	case "already_in_zone":
		return "すでにこのエリアにいます。"
	case "inside_another_zone":
		return "別のエリアに入場中です。エリア移動として読み取ってください。"
	case "unknown_zone":
		return "本日のルールに存在しないエリアです。"
	default:
		return localizedStatusMessage(http.StatusConflict)
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch {
	case strings.HasSuffix(message, " is required"):
		return "必須項目です。"
	case strings.HasSuffix(message, "must be formatted as YYYY-MM-DD"):
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case strings.HasSuffix(message, "must be formatted as HH:MM"):
		return "時刻は HH:MM 形式で指定してください。"
	case strings.HasSuffix(message, "must be after start"), strings.HasSuffix(message, "must be after session_start"):
		return "終了時刻は開始時刻より後である必要があります。"
	case strings.HasSuffix(message, "must not be negative"):
		return "0 以上の値を指定してください。"
	case strings.HasSuffix(message, "must be unique"):
		return "同じエリア ID が重複しています。"
	case strings.HasSuffix(message, "until must not be before from"):
		return "終了日は開始日以降を指定してください。"
	case strings.HasPrefix(message, "weekday must be"):
		return "曜日は英語の曜日名 (mon, tuesday など) で指定してください。"
	case strings.HasPrefix(message, "action must be one of"):
		return "操作は auto, check_in, check_out, switch のいずれかを指定してください。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
