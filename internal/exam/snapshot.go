package exam

import "github.com/stemsi/exstem-client/internal/model"

// ErrorCode tells the view which remote step failed.
type ErrorCode string

const (
	CodeStartFailed  ErrorCode = "START_FAILED"
	CodeSubmitFailed ErrorCode = "SUBMIT_FAILED"
)

// SnapshotError is the user-facing form of a failed remote call.
type SnapshotError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Retryable bool      `json:"retryable"`
}

// Snapshot is an immutable copy of the controller state for rendering.
type Snapshot struct {
	Phase          model.Phase     `json:"phase"`
	SessionID      model.SessionID `json:"session_id,omitempty"`
	CurrentIndex   int             `json:"current_index"`
	TotalQuestions int             `json:"total_questions"`
	Question       *model.Question `json:"question,omitempty"`
	SelectedOption string          `json:"selected_option,omitempty"`
	Answers        map[int]string  `json:"answers"`
	AnsweredCount  int             `json:"answered_count"`
	TimeRemaining  int             `json:"time_remaining_seconds"`
	Clock          string          `json:"clock"`
	CanPrevious    bool            `json:"can_previous"`
	CanNext        bool            `json:"can_next"`
	Submitted      bool            `json:"submitted"`
	Submitting     bool            `json:"submitting"`
	Score          *float64        `json:"score,omitempty"`
	Error          *SnapshotError  `json:"error,omitempty"`
}

func startError(err error) *SnapshotError {
	return &SnapshotError{
		Code:      CodeStartFailed,
		Message:   "The exam could not be started. Check your connection and try again.",
		Detail:    err.Error(),
		Retryable: true,
	}
}

func submitError(err error) *SnapshotError {
	return &SnapshotError{
		Code:      CodeSubmitFailed,
		Message:   "Your answers are locked in, but the score could not be retrieved. Retry to resend the same answers.",
		Detail:    err.Error(),
		Retryable: true,
	}
}
