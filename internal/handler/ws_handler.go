package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/exam"
	"github.com/stemsi/exstem-client/internal/middleware"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

// outboxSize bounds queued events per connection. A stalled browser loses
// in-progress snapshots instead of blocking the countdown.
const outboxSize = 16

// outbox queues events for the connection's single writer.
type outbox chan interface{}

// offer queues v, dropping it when the queue is full.
func (o outbox) offer(v interface{}) bool {
	select {
	case o <- v:
		return true
	default:
		return false
	}
}

// force queues v, evicting the oldest queued events until it fits.
func (o outbox) force(v interface{}) {
	for !o.offer(v) {
		select {
		case <-o:
		default:
		}
	}
}

// mustDeliver reports whether a snapshot carries state no later tick
// would resend: loading, submission and score.
func mustDeliver(s exam.Snapshot) bool {
	return s.Phase != model.PhaseInProgress || s.Score != nil
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
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

// WSHandler streams exam snapshots to the browser and accepts actions.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream?token=...
// Pushes a snapshot on connect and after every change (each countdown tick
// included). Accepts select, navigate, submit, retry and ping actions.
func (h *WSHandler) ExamStream(c *gin.Context) {
	info := middleware.GetCredential(c)
	if info == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.sessionService.Get(info)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("viewer", info.ViewerKey()).Logger()
	wsLog.Info().Msg("Exam view connected")

	out := make(outbox, outboxSize)
	push := func(v interface{}) {
		if !out.offer(v) {
			wsLog.Debug().Msg("Outbox full, dropping event")
		}
	}
	pushSnapshot := func(s exam.Snapshot) {
		ev := ws.SnapshotResponse{Event: ws.EventSnapshot, Snapshot: s}
		if mustDeliver(s) {
			out.force(ev)
			return
		}
		push(ev)
	}

	unsubscribe := ctrl.Subscribe(pushSnapshot)
	defer unsubscribe()

	writerDone := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			case <-ctrl.Done():
				// Exited or replaced; closing conn also ends the read loop.
				_ = ws.WriteTyped(conn, ws.NewError(exam.ErrClosed.Error()))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "exam view closed"))
				conn.Close()
				wsLog.Info().Msg("Exam view closed, stream ended")
				return
			case v := <-out:
				if err := ws.WriteTyped(conn, v); err != nil {
					wsLog.Debug().Err(err).Msg("Write failed")
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		<-writerDone
	}()

	pushSnapshot(ctrl.Snapshot())

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(c.Request.Context(), ctrl, &msg); err != nil {
			push(ws.NewError(err.Error()))
			if errors.Is(err, exam.ErrClosed) {
				return
			}
		} else if msg.Action == ws.ActionPing {
			push(ws.PongResponse{Event: ws.EventPong})
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, ctrl *exam.Controller, msg *ws.RequestPayload) error {
	switch msg.Action {
	case ws.ActionSelect:
		if msg.Option == "" {
			return errors.New("option is required")
		}
		return ctrl.SelectAnswer(msg.Option)
	case ws.ActionNavigate:
		return ctrl.Navigate(exam.Direction(msg.Direction))
	case ws.ActionSubmit:
		return ctrl.Submit(ctx)
	case ws.ActionRetry:
		return ctrl.Retry(ctx)
	case ws.ActionPing:
		return nil
	default:
		return errors.New("unknown action: " + string(msg.Action))
	}
}
