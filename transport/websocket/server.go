package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/broadcast"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/usecase"
)

const (
	SessionCookie = "user_session"

	cookieTTL    = 24 * time.Hour
	writeTimeout = 5 * time.Second
)

type handlerFunc func(ctx context.Context, client *client, message *Message) error

// Server upgrades /ws requests and speaks the session protocol over them.
// Each connection follows at most one session feed at a time.
type Server struct {
	logger   *slog.Logger
	sessions usecase.SessionUseCase
	origins  []string

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, sessions usecase.SessionUseCase, origins []string) *Server {
	server := &Server{
		logger:   logger.With("component", "websocket"),
		sessions: sessions,
		origins:  origins,
		handlers: make(map[string]handlerFunc),
	}

	server.handlers[ActionCreate] = server.handleCreate
	server.handlers[ActionJoin] = server.handleJoin
	server.handlers[ActionResume] = server.handleResume
	server.handlers[ActionMove] = server.handleMove
	server.handlers[ActionClose] = server.handleClose

	return server
}

func (that *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	identity := that.setSessionCookie(w, r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: that.origins})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}

	c := &client{
		logger:   log.With("identity", identity),
		conn:     conn,
		identity: identity,
	}
	defer c.unfollow()

	log.Info("WebSocket connection established", "identity", identity)

	err = that.handleMessages(r.Context(), c)

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Debug("connection ended", "error", err)
		conn.Close(websocket.StatusInternalError, "connection ended")
	}
}

// handleMessages - processes messages from the client until it goes away.
func (that *Server) handleMessages(ctx context.Context, c *client) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			c.reply(ctx, "", fmt.Errorf("%w: malformed message: %w", apperror.ErrInvalidOptions, err))
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			c.reply(ctx, message.Action, fmt.Errorf("%w: %q", apperror.ErrUnknownAction, message.Action))
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			c.reply(ctx, message.Action, err)
		}
	}
}

func (that *Server) handleCreate(ctx context.Context, c *client, message *Message) error {
	var payload CreatePayload
	if err := decode(message, &payload); err != nil {
		return err
	}

	session, err := that.sessions.Create(ctx, c.identity, payload.Variant, payload.Options)
	if err != nil {
		return err
	}

	return that.follow(ctx, c, session)
}

// handleJoin treats an identity that is already seated as a resume.
func (that *Server) handleJoin(ctx context.Context, c *client, message *Message) error {
	var payload SessionPayload
	if err := decode(message, &payload); err != nil {
		return err
	}

	session, err := that.sessions.Join(ctx, payload.SessionID, c.identity)
	if errors.Is(err, apperror.ErrAlreadyJoined) {
		if snapshot, ok := entity.SnapshotOf(err); ok {
			session, err = snapshot, nil
		}
	}
	if err != nil {
		return err
	}

	return that.follow(ctx, c, session)
}

func (that *Server) handleResume(ctx context.Context, c *client, message *Message) error {
	var payload SessionPayload
	if err := decode(message, &payload); err != nil {
		return err
	}

	session, err := that.sessions.Resume(ctx, payload.SessionID, c.identity)
	if err != nil {
		return err
	}

	return that.follow(ctx, c, session)
}

func (that *Server) handleMove(ctx context.Context, c *client, message *Message) error {
	var payload MovePayload
	if err := decode(message, &payload); err != nil {
		return err
	}

	session, err := that.sessions.SubmitMove(ctx, entity.Move{
		SessionID:       payload.SessionID,
		Submitter:       c.identity,
		ObservedVersion: payload.ObservedVersion,
		Action:          payload.Action,
	})
	if err != nil {
		return err
	}

	// a followed session reaches the client through its feed
	if c.following(session.ID) {
		return nil
	}

	return c.sendState(ctx, session)
}

func (that *Server) handleClose(ctx context.Context, c *client, message *Message) error {
	var payload SessionPayload
	if err := decode(message, &payload); err != nil {
		return err
	}

	if err := that.sessions.Close(ctx, payload.SessionID, c.identity); err != nil {
		return err
	}

	if c.following(payload.SessionID) {
		return nil
	}

	return c.send(ctx, ActionClosed, SessionPayload{SessionID: payload.SessionID})
}

// follow points the client's feed at session. When the client already follows
// it, the snapshot is sent directly since the feed has nothing new to say.
func (that *Server) follow(ctx context.Context, c *client, session *entity.Session) error {
	if c.following(session.ID) {
		return c.sendState(ctx, session)
	}

	c.unfollow()

	sub, err := that.sessions.Subscribe(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to follow session: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.sub, c.cancel = sub, cancel

	go that.stream(streamCtx, c, sub)

	return nil
}

// stream writes every snapshot of sub to the client until the feed ends.
func (that *Server) stream(ctx context.Context, c *client, sub *broadcast.Subscription) {
	defer sub.Close()

	for {
		session, err := sub.Next(ctx)
		if errors.Is(err, broadcast.ErrClosed) && ctx.Err() == nil {
			if err = c.send(ctx, ActionClosed, SessionPayload{SessionID: sub.SessionID}); err != nil {
				c.logger.Debug("failed to send session close", "error", err)
			}
			return
		}
		if err != nil {
			return
		}

		if err = c.sendState(ctx, session); err != nil {
			c.logger.Debug("failed to send session state", "session_id", sub.SessionID, "error", err)
			return
		}
	}
}

// setSessionCookie returns the caller's identity, issuing a new one when the
// user_session cookie is missing.
func (that *Server) setSessionCookie(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    uuid.NewString(),
		Expires:  time.Now().Add(cookieTTL),
		Path:     "/ws",
		HttpOnly: true,
	}
	http.SetCookie(w, cookie)

	that.logger.Info("session cookie not found, new one created", "cookie", cookie.Value)

	return cookie.Value
}

func decode(message *Message, dst any) error {
	if err := json.Unmarshal(message.Payload, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %w", apperror.ErrInvalidOptions, err)
	}
	return nil
}

// client is one accepted connection. sub and cancel are only touched by the
// connection's reader goroutine.
type client struct {
	logger   *slog.Logger
	conn     *websocket.Conn
	identity string

	sub    *broadcast.Subscription
	cancel context.CancelFunc

	// stateMu orders session:state writes from the reader and the feed.
	stateMu sync.Mutex
	states  stateGate
}

// stateGate keeps session:state deliveries non-decreasing in revision per session.
type stateGate struct {
	sessionID string
	revision  int64
}

// admit reports whether session may be sent after what was already sent,
// and records it when so.
func (that *stateGate) admit(session *entity.Session) bool {
	if session.ID == that.sessionID && session.Revision < that.revision {
		return false
	}
	that.sessionID, that.revision = session.ID, session.Revision
	return true
}

func (that *client) following(id string) bool {
	return that.sub != nil && that.sub.SessionID == id
}

func (that *client) unfollow() {
	if that.sub == nil {
		return
	}

	that.cancel()
	that.sub.Close()
	that.sub, that.cancel = nil, nil
}

// sendState writes session unless a newer revision of it already went out.
func (that *client) sendState(ctx context.Context, session *entity.Session) error {
	that.stateMu.Lock()
	defer that.stateMu.Unlock()

	if !that.states.admit(session) {
		return nil
	}

	return that.send(ctx, ActionState, StatePayload{Session: session})
}

func (that *client) send(ctx context.Context, action string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err = wsjson.Write(ctx, that.conn, Message{Action: action, Payload: data}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// reply reports a failed request to the client, with the current session
// attached when the failure carries one.
func (that *client) reply(ctx context.Context, action string, err error) {
	payload := ErrorPayload{
		Action: action,
		Code:   apperror.Code(err),
		Error:  err.Error(),
	}
	if snapshot, ok := entity.SnapshotOf(err); ok {
		payload.Session = snapshot
	}

	if code := payload.Code; code == "internal" || code == "transient" {
		that.logger.Error("request failed", "action", action, "error", err)
	}

	if sendErr := that.send(ctx, ActionError, payload); sendErr != nil {
		that.logger.Debug("failed to send error", "error", sendErr)
	}
}
