package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/exam"
	"github.com/stemsi/exstem-client/internal/middleware"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/validator"
)

// ExamHandler exposes the exam controller to the browser view.
type ExamHandler struct {
	sessionService *service.ExamSessionService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessionService *service.ExamSessionService) *ExamHandler {
	return &ExamHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/exam/session
// Opens the exam view for the caller and starts a session on the exam service.
// A failed start keeps the view open in LOADING so it can be retried.
func (h *ExamHandler) StartSession(c *gin.Context) {
	info := middleware.GetCredential(c)
	if info == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.sessionService.Open(c.Request.Context(), info)
	if err != nil {
		h.fail(c, err, ctrl)
		return
	}

	response.Success(c, http.StatusCreated, ctrl.Snapshot())
}

// GetSession godoc
// GET /api/v1/exam/session
// Returns the current exam snapshot.
func (h *ExamHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// SelectAnswer godoc
// POST /api/v1/exam/session/answer
// Records the chosen option for the current question.
func (h *ExamHandler) SelectAnswer(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SelectAnswer(req.Option); err != nil {
		h.fail(c, err, ctrl)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Navigate godoc
// POST /api/v1/exam/session/navigate
// Moves to the previous or next question; a no-op at either end.
func (h *ExamHandler) Navigate(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Navigate(exam.Direction(req.Direction)); err != nil {
		h.fail(c, err, ctrl)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Submit godoc
// POST /api/v1/exam/session/submit
// Submits the recorded answers. Only the first submission is sent.
func (h *ExamHandler) Submit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Submit(c.Request.Context()); err != nil {
		h.fail(c, err, ctrl)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Retry godoc
// POST /api/v1/exam/session/retry
// Repeats the failed start, or resends the frozen answers of a failed submit.
func (h *ExamHandler) Retry(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Retry(c.Request.Context()); err != nil {
		h.fail(c, err, ctrl)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// EndSession godoc
// DELETE /api/v1/exam/session
// Leaves the exam view. The countdown stops; an in-flight submit completes.
func (h *ExamHandler) EndSession(c *gin.Context) {
	info := middleware.GetCredential(c)
	if info == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessionService.Exit(info); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "exited"})
}

func (h *ExamHandler) controller(c *gin.Context) (*exam.Controller, bool) {
	info := middleware.GetCredential(c)
	if info == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	ctrl, err := h.sessionService.Get(info)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return nil, false
	}
	return ctrl, true
}

// fail maps controller errors onto the API envelope. Remote failures carry
// the snapshot so the view can render the retry state without a second call.
func (h *ExamHandler) fail(c *gin.Context, err error, ctrl *exam.Controller) {
	switch {
	case errors.Is(err, exam.ErrStartFailed):
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Start failed")
		response.FailWithData(c, http.StatusBadGateway, response.ErrStartFailed, err.Error(), ctrl.Snapshot())
	case errors.Is(err, exam.ErrSubmitFailed):
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Submit failed")
		response.FailWithData(c, http.StatusBadGateway, response.ErrSubmitFailed, err.Error(), ctrl.Snapshot())
	case errors.Is(err, exam.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, exam.ErrNotStarted), errors.Is(err, exam.ErrAlreadyStarted):
		response.Fail(c, http.StatusConflict, response.ErrNotStarted)
	case errors.Is(err, exam.ErrUnknownOption), errors.Is(err, exam.ErrInvalidDirection):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownOption)
	case errors.Is(err, exam.ErrNothingToRetry):
		response.Fail(c, http.StatusConflict, response.ErrNothingToRetry)
	case errors.Is(err, exam.ErrRequestInFlight):
		response.Fail(c, http.StatusConflict, response.ErrRequestInFlight)
	case errors.Is(err, exam.ErrClosed):
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Unhandled exam error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
