package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/usecase"
)

// IdentityHeader carries the participant identity issued by the identity provider.
const IdentityHeader = "X-Participant-ID"

const maxBodyBytes = 1 << 20

var errMissingIdentity = fmt.Errorf("%w: %s header is required", apperror.ErrInvalidOptions, IdentityHeader)

type Handlers interface {
	CreateSession(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	JoinSession(w http.ResponseWriter, r *http.Request)
	SubmitMove(w http.ResponseWriter, r *http.Request)
	CloseSession(w http.ResponseWriter, r *http.Request)
}

type CreateRequest struct {
	Variant entity.Variant `json:"variant"`
	Options entity.Options `json:"options"`
}

type MoveRequest struct {
	ObservedVersion int64         `json:"observed_version"`
	Action          entity.Action `json:"action"`
}

type ErrorResponse struct {
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Session *entity.Session `json:"session,omitempty"`
}

type handlers struct {
	logger   *slog.Logger
	sessions usecase.SessionUseCase
}

func NewHandlers(logger *slog.Logger, sessions usecase.SessionUseCase) Handlers {
	return &handlers{
		logger:   logger.With("component", "rest"),
		sessions: sessions,
	}
}

func (that *handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := that.identity(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !that.decode(w, r, &req) {
		return
	}

	session, err := that.sessions.Create(r.Context(), identity, req.Variant, req.Options)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeJSON(w, http.StatusCreated, session)
}

func (that *handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := that.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeJSON(w, http.StatusOK, session)
}

// JoinSession seats the caller. A caller who is already seated gets the
// current session back, the same as a resume.
func (that *handlers) JoinSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := that.identity(w, r)
	if !ok {
		return
	}

	session, err := that.sessions.Join(r.Context(), chi.URLParam(r, "id"), identity)
	if errors.Is(err, apperror.ErrAlreadyJoined) {
		if snapshot, found := entity.SnapshotOf(err); found {
			that.writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeJSON(w, http.StatusOK, session)
}

func (that *handlers) SubmitMove(w http.ResponseWriter, r *http.Request) {
	identity, ok := that.identity(w, r)
	if !ok {
		return
	}

	var req MoveRequest
	if !that.decode(w, r, &req) {
		return
	}

	session, err := that.sessions.SubmitMove(r.Context(), entity.Move{
		SessionID:       chi.URLParam(r, "id"),
		Submitter:       identity,
		ObservedVersion: req.ObservedVersion,
		Action:          req.Action,
	})
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeJSON(w, http.StatusOK, session)
}

func (that *handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := that.identity(w, r)
	if !ok {
		return
	}

	if err := that.sessions.Close(r.Context(), chi.URLParam(r, "id"), identity); err != nil {
		that.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *handlers) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := r.Header.Get(IdentityHeader)
	if identity == "" {
		that.writeError(w, r, errMissingIdentity)
		return "", false
	}
	return identity, true
}

func (that *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		that.writeError(w, r, fmt.Errorf("%w: malformed body: %w", apperror.ErrInvalidOptions, err))
		return false
	}
	return true
}

func (that *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperror.Code(err)
	status := StatusOf(err)

	if status >= http.StatusInternalServerError {
		that.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	resp := ErrorResponse{Code: code, Error: err.Error()}
	if snapshot, ok := entity.SnapshotOf(err); ok {
		resp.Session = snapshot
	}

	that.writeJSON(w, status, resp)
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

// StatusOf maps a session error to the HTTP status returned for it.
func StatusOf(err error) int {
	switch apperror.Code(err) {
	case "session_not_found":
		return http.StatusNotFound
	case "not_participant":
		return http.StatusForbidden
	case "session_full", "already_joined", "session_not_ready", "session_finished", "not_your_turn", "conflict":
		return http.StatusConflict
	case "invalid_move":
		return http.StatusUnprocessableEntity
	case "bad_request":
		return http.StatusBadRequest
	case "busy", "transient":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
