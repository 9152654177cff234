package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionVisibility Action = "visibility"
	ActionFace       Action = "face"
	ActionAudio      Action = "audio"
	ActionMic        Action = "mic"
	ActionStartExam  Action = "start_exam"
	ActionAnswer     Action = "answer"
	ActionSkip       Action = "skip"
	ActionSave       Action = "save"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestPayload is the single client message shape. Signal fields are
// pointers so a missing field is distinguishable from a false/zero value.
type RequestPayload struct {
	Action Action `json:"action"`

	// Signal actions
	Visible *bool    `json:"visible,omitempty"` // visibility
	Present *bool    `json:"present,omitempty"` // face
	Level   *float64 `json:"level,omitempty"`   // audio
	On      *bool    `json:"on,omitempty"`      // mic

	// Exam actions
	QuestionID int    `json:"question_id,omitempty"` // answer, skip
	Answer     string `json:"answer,omitempty"`      // answer

	// Bulk save (save action only)
	CurrentQuestion  int            `json:"current_question,omitempty"`
	Answers          map[int]string `json:"answers,omitempty"`
	QuestionStatuses map[int]string `json:"question_statuses,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventAck     Event = "ack"
	EventGraded  Event = "graded"
	EventWarning Event = "warning"
	EventPong    Event = "pong"
)

// AckResponse confirms a signal or exam action was applied.
type AckResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

// GradedResponse carries the final score after submit.
type GradedResponse struct {
	Event  Event  `json:"event"`
	Score  int    `json:"score"`
	ExamID string `json:"exam_id"`
}

// WarningResponse is pushed when a proctor sends a manual warning.
type WarningResponse struct {
	Event    Event  `json:"event"`
	Reason   string `json:"reason"`
	Warnings int    `json:"warnings"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
