package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Phase enumerates the lifecycle states of one exam attempt.
type Phase string

const (
	PhaseLoading    Phase = "LOADING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSubmitted  Phase = "SUBMITTED"
)

// SessionID is the opaque session identifier issued by the exam service.
// It holds the raw JSON value (number or string) and is echoed back verbatim.
type SessionID string

var errInvalidSessionID = errors.New("session_id must be a number or a string")

// UnmarshalJSON accepts a JSON number or string and keeps its exact text.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = ""
			return nil
		}
	case '{', '[', 't', 'f':
		return errInvalidSessionID
	}
	*id = SessionID(data)
	return nil
}

// MarshalJSON writes the identifier exactly as it was received.
func (id SessionID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

// String returns a display form without JSON quoting.
func (id SessionID) String() string {
	if s, err := strconv.Unquote(string(id)); err == nil {
		return s
	}
	return string(id)
}

// StartExamResponse is the exam service's reply to a start request.
type StartExamResponse struct {
	SessionID SessionID  `json:"session_id" validate:"required"`
	Questions []Question `json:"questions" validate:"min=1,unique=ID,dive"`
	// DurationSeconds is optional; when present it overrides the local default.
	DurationSeconds int `json:"duration_seconds,omitempty" validate:"gte=0"`
}

// AnswerRecord is one chosen option in a submission.
type AnswerRecord struct {
	QuestionID   int    `json:"question_id"`
	ChosenOption string `json:"chosen_option"`
}

// SubmitExamRequest is the body sent to the exam service on submission.
type SubmitExamRequest struct {
	SessionID SessionID      `json:"session_id"`
	Answers   []AnswerRecord `json:"answers"`
}

// SubmitExamResponse carries the score computed by the exam service.
type SubmitExamResponse struct {
	Message string   `json:"message,omitempty"`
	Score   *float64 `json:"score" validate:"required"`
}

// SelectAnswerRequest is the gateway payload for picking an option.
type SelectAnswerRequest struct {
	Option string `json:"option" binding:"required,max=10"`
}

// NavigateRequest is the gateway payload for moving between questions.
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required,oneof=previous next"`
}
