package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/engine"
	"github.com/peakprep/peakprep-backend/internal/middleware"
	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/outbox"
	"github.com/peakprep/peakprep-backend/internal/repository"
	ws "github.com/peakprep/peakprep-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live practice stream. Each connection owns one session
// engine; the socket is that engine's only action source, so one connection
// means exactly one live session.
type WSHandler struct {
	cfg       *config.Config
	rdb       *redis.Client
	questions *repository.QuestionRepository
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(cfg *config.Config, rdb *redis.Client, questions *repository.QuestionRepository, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		cfg:       cfg,
		rdb:       rdb,
		questions: questions,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(cfg.AllowedOrigins),
	}
}

// streamConn serializes writes: the read loop, the sync forwarder and nothing
// else write to the socket, but gorilla connections allow only one writer at
// a time.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *streamConn) send(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ws.WriteTyped(s.conn, v)
}

// PracticeStream godoc
// WS /ws/v1/practice?token=...
// Upgrades to WebSocket and drives the per-connection session engine.
func (h *WSHandler) PracticeStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID := claims.UserID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Outlives the HTTP request; cancelled when the socket goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog := h.log.With().Str("user_id", userID.String()).Logger()

	publisher := outbox.NewPublisher(h.rdb, wsLog, h.cfg.AnswerDebounce)
	defer publisher.Close()

	store := engine.NewRedisSnapshotStore(h.rdb, config.CacheKey.PracticeSnapshotKey(userID))
	eng := engine.New(userID, publisher, store, wsLog)

	sc := &streamConn{conn: conn}

	// Resume an interrupted session before accepting any action.
	if eng.Restore(ctx) {
		sc.send(ws.StateResponse{Event: ws.EventRestored, Session: ws.NewSessionView(eng.Session())})
	}

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.PracticeEventsChannel(userID))
	defer pubsub.Close()
	go h.forwardSyncEvents(ctx, pubsub, eng, sc)

	ticker := engine.NewTicker(eng, time.Second)
	go ticker.Start(ctx)
	defer ticker.Stop()

	wsLog.Info().Msg("Practice stream connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionStart:
			h.handleStart(ctx, eng, sc, &msg)
		case ws.ActionAnswer:
			h.handleAnswer(ctx, eng, sc, &msg)
		case ws.ActionGoto:
			eng.Dispatch(ctx, engine.GoToQuestion{Index: msg.Index})
			h.sendState(eng, sc)
		case ws.ActionFlag:
			h.handleFlag(ctx, eng, sc, &msg)
		case ws.ActionPause:
			eng.Dispatch(ctx, engine.PauseSession{})
			h.sendState(eng, sc)
		case ws.ActionResume:
			eng.Dispatch(ctx, engine.ResumeSession{})
			h.sendState(eng, sc)
		case ws.ActionComplete:
			h.handleComplete(ctx, eng, sc, wsLog)
		case ws.ActionAbandon:
			eng.Dispatch(ctx, engine.AbandonSession{})
			sc.send(ws.StateResponse{Event: ws.EventState, Session: nil})
		case ws.ActionPing:
			sc.send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

// forwardSyncEvents relays the user's sync events to the client and feeds the
// remote session id back into the engine when creation lands.
func (h *WSHandler) forwardSyncEvents(ctx context.Context, pubsub *redis.PubSub, eng *engine.Engine, sc *streamConn) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev outbox.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Type == outbox.EventSessionCreated && ev.SessionID != "" {
				if remoteID, err := uuid.Parse(ev.SessionID); err == nil {
					eng.AttachRemoteSession(ctx, ev.LocalID, remoteID)
				}
			}
			sc.send(ws.SyncResponse{Event: ws.EventSync, Detail: ev})
		}
	}
}

func (h *WSHandler) handleStart(ctx context.Context, eng *engine.Engine, sc *streamConn, msg *ws.RequestPayload) {
	testType := model.TestType(msg.TestType)
	sessionType := model.SessionType(msg.SessionType)

	count := msg.QuestionCount
	if count <= 0 {
		count = 10
	}

	sampled, err := h.questions.Sample(ctx, testType, msg.Subject, msg.Topic, model.Difficulty(msg.Difficulty), count)
	if err != nil {
		h.log.Error().Err(err).Msg("Question sample failed")
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "could not load questions"})
		return
	}
	if len(sampled) == 0 {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "no questions match the requested filters"})
		return
	}

	eng.Dispatch(ctx, engine.StartSession{
		TestType:    testType,
		SessionType: sessionType,
		Subject:     msg.Subject,
		Topic:       msg.Topic,
		Difficulty:  model.Difficulty(msg.Difficulty),
		Questions:   sampled,
	})
	h.sendState(eng, sc)
}

func (h *WSHandler) handleAnswer(ctx context.Context, eng *engine.Engine, sc *streamConn, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}
	choice := model.Choice(msg.Answer)
	if !choice.Valid() {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "ans must be one of A, B, C, D"})
		return
	}

	eng.Dispatch(ctx, engine.AnswerQuestion{QuestionID: questionID, Answer: choice})
	h.sendState(eng, sc)
}

func (h *WSHandler) handleFlag(ctx context.Context, eng *engine.Engine, sc *streamConn, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}

	eng.Dispatch(ctx, engine.ToggleFlag{QuestionID: questionID})
	h.sendState(eng, sc)
}

func (h *WSHandler) handleComplete(ctx context.Context, eng *engine.Engine, sc *streamConn, wsLog zerolog.Logger) {
	eng.Dispatch(ctx, engine.CompleteSession{})

	s := eng.Session()
	if s == nil || !s.IsCompleted || s.Score == nil {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "no active session to complete"})
		return
	}

	answered := s.AnsweredCount()
	correct := s.CorrectCount()
	result := model.CompletionResult{
		Score:          *s.Score,
		CorrectAnswers: correct,
		TotalQuestions: len(s.Questions),
		TotalAnswered:  answered,
	}
	if answered > 0 {
		result.PercentageCorrect = float64(correct) / float64(answered) * 100
	}

	wsLog.Info().
		Int("score", result.Score).
		Int("correct", correct).
		Int("answered", answered).
		Msg("Session completed locally")

	// The server-side recompute arrives later as a session_completed sync
	// event; this is the immediate local outcome.
	sc.send(ws.CompletedResponse{Event: ws.EventCompleted, Result: result, Session: ws.NewSessionView(s)})
}

func (h *WSHandler) sendState(eng *engine.Engine, sc *streamConn) {
	sc.send(ws.StateResponse{Event: ws.EventState, Session: ws.NewSessionView(eng.Session())})
}
