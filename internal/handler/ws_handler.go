package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/middleware"
	"github.com/safeexaminer/proctor-backend/internal/model"
	"github.com/safeexaminer/proctor-backend/internal/service"
	ws "github.com/safeexaminer/proctor-backend/internal/websocket"
)

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

// WSHandler handles the student-side proctoring stream: proctoring signals
// and exam actions flow in, acks and pushed warnings flow out.
type WSHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(proctorService *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ProctorStream godoc
// WS /ws/v1/proctor/stream?token=...
// Upgrades to WebSocket for real-time signal reporting and exam actions.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sessionID := claims.SessionID

	// The monitor session is created at login; refuse streams for unknown ones.
	if _, err := h.proctorService.GetStudent(sessionID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "session not monitored"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", sessionID).Logger()
	wsLog.Info().Msg("Student connected")

	// Writes come from both the read loop and the warning push callback.
	var writeMu sync.Mutex
	write := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := ws.WriteTyped(conn, v); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
		}
	}
	writeErr := func(msg string) {
		write(ws.ErrorResponse{Event: ws.EventError, Error: msg})
	}

	// Push admin warnings to this student while the stream is open.
	unsubscribe := h.proctorService.Bus().SubscribeActivity(func(ev model.ActivityEvent) {
		if ev.StudentID != sessionID || ev.Type != model.ActivityWarningReceived {
			return
		}
		warnings := 0
		if st, err := h.proctorService.GetStudent(sessionID); err == nil {
			warnings = st.Warnings
		}
		write(ws.WarningResponse{Event: ws.EventWarning, Reason: ev.Detail, Warnings: warnings})
	})
	defer unsubscribe()

	// A dropped socket is a disconnect signal in its own right.
	defer h.proctorService.Disconnect(sessionID)

	// Re-opening the stream after a drop counts as reconnecting. No-op for
	// sessions that are already online.
	if err := h.proctorService.Reconnect(sessionID); err != nil {
		wsLog.Warn().Err(err).Msg("Reconnect failed")
	}

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
		case ws.ActionVisibility:
			if msg.Visible == nil {
				writeErr("visible is required")
				continue
			}
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SetTabVisibility(sessionID, *msg.Visible))

		case ws.ActionFace:
			if msg.Present == nil {
				writeErr("present is required")
				continue
			}
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SetFacePresence(sessionID, *msg.Present))

		case ws.ActionAudio:
			if msg.Level == nil {
				writeErr("level is required")
				continue
			}
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SetAudioLevel(sessionID, *msg.Level))

		case ws.ActionMic:
			if msg.On == nil {
				writeErr("on is required")
				continue
			}
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SetMicState(sessionID, *msg.On))

		case ws.ActionStartExam:
			if _, err := h.proctorService.StartExam(sessionID); err != nil {
				writeErr(err.Error())
				continue
			}
			write(ws.AckResponse{Event: ws.EventAck, Action: msg.Action})

		case ws.ActionAnswer:
			h.dispatch(write, writeErr, msg.Action, h.proctorService.AnswerQuestion(sessionID, msg.QuestionID, msg.Answer))

		case ws.ActionSkip:
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SkipQuestion(sessionID, msg.QuestionID))

		case ws.ActionSave:
			req := model.SaveProgressRequest{
				CurrentQuestion:  msg.CurrentQuestion,
				Answers:          msg.Answers,
				QuestionStatuses: msg.QuestionStatuses,
			}
			h.dispatch(write, writeErr, msg.Action, h.proctorService.SaveProgress(sessionID, req))

		case ws.ActionSubmit:
			record, err := h.proctorService.SubmitExam(sessionID)
			if err != nil {
				writeErr(err.Error())
				continue
			}
			score := 0
			if record.Score != nil {
				score = *record.Score
			}
			write(ws.GradedResponse{Event: ws.EventGraded, Score: score, ExamID: record.ExamID})

		case ws.ActionPing:
			write(ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			writeErr("unknown action: " + string(msg.Action))
		}
	}
}

func (h *WSHandler) dispatch(write func(interface{}), writeErr func(string), action ws.Action, err error) {
	if err != nil {
		writeErr(err.Error())
		return
	}
	write(ws.AckResponse{Event: ws.EventAck, Action: action})
}
