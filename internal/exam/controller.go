// Package exam drives one timed multiple-choice exam attempt: start,
// answer selection, navigation, countdown and submission.
package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
)

// Service is the remote exam service as seen by the controller.
type Service interface {
	Start(ctx context.Context, credential string) (*model.StartExamResponse, error)
	Submit(ctx context.Context, credential string, req *model.SubmitExamRequest) (*model.SubmitExamResponse, error)
}

// Direction selects the neighbouring question.
type Direction string

const (
	DirectionPrevious Direction = "previous"
	DirectionNext     Direction = "next"
)

// Options configures a Controller. Credential and OnExit come from the view
// that opened the exam.
type Options struct {
	Credential string
	// OnExit runs once when the user leaves the exam view.
	OnExit func()
	// OnChange receives a snapshot after every state change, ticks included.
	OnChange func(Snapshot)
	// DurationSeconds is the countdown used unless the service supplies one.
	DurationSeconds int
	// Ticker defaults to SystemTicker.
	Ticker TickerFunc
	Logger zerolog.Logger
}

// Controller owns the lifecycle of one exam attempt. All methods are safe
// for concurrent use; every transition happens under mu.
type Controller struct {
	svc        Service
	credential string
	duration   int
	ticker     TickerFunc
	onExit     func()
	log        zerolog.Logger

	mu        sync.Mutex
	phase     model.Phase
	sessionID model.SessionID
	questions []model.Question
	current   int
	answers   map[int]string
	remaining int
	submitted bool
	score     *float64
	payload   *model.SubmitExamRequest

	startAttempted bool
	inFlight       bool
	startErr       error
	submitErr      error
	timer          *countdown
	closed         bool
	done           chan struct{}
	exitOnce       sync.Once

	// nmu orders deliveries so listeners never see an older snapshot after
	// a newer one.
	nmu       sync.Mutex
	lmu       sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewController creates a controller in the loading phase.
func NewController(svc Service, opts Options) *Controller {
	duration := opts.DurationSeconds
	if duration <= 0 {
		duration = config.DefaultExamDurationSeconds
	}
	ticker := opts.Ticker
	if ticker == nil {
		ticker = SystemTicker
	}

	c := &Controller{
		svc:        svc,
		credential: opts.Credential,
		duration:   duration,
		ticker:     ticker,
		onExit:     opts.OnExit,
		log:        opts.Logger.With().Str("component", "exam_controller").Logger(),
		phase:      model.PhaseLoading,
		answers:    make(map[int]string),
		remaining:  duration,
		done:       make(chan struct{}),
		listeners:  make(map[int]func(Snapshot)),
	}
	if opts.OnChange != nil {
		c.Subscribe(opts.OnChange)
	}
	return c
}

// Start requests a new session from the exam service. It is meant to run
// once, right after the view opens; a failed start is repeated with
// RetryStart.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.startAttempted {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.startAttempted = true
	c.inFlight = true
	c.mu.Unlock()

	return c.start(ctx)
}

// RetryStart repeats a failed start. Only valid while still loading.
func (c *Controller) RetryStart(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.inFlight:
		c.mu.Unlock()
		return ErrRequestInFlight
	case c.phase != model.PhaseLoading || c.startErr == nil:
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.inFlight = true
	c.mu.Unlock()

	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) error {
	resp, err := c.svc.Start(ctx, c.credential)
	if err == nil && len(resp.Questions) == 0 {
		err = ErrNoQuestions
	}

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.startErr = err
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("Exam start failed")
		c.notify()
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.sessionID = resp.SessionID
	c.questions = resp.Questions
	c.current = 0
	c.remaining = c.duration
	if resp.DurationSeconds > 0 {
		c.remaining = resp.DurationSeconds
	}
	c.startErr = nil
	c.phase = model.PhaseInProgress
	c.timer = newCountdown(c.ticker, c.tick, c.expire)
	sid, remaining := c.sessionID, c.remaining
	c.mu.Unlock()

	c.log.Info().
		Stringer("session_id", sid).
		Int("questions", len(resp.Questions)).
		Int("duration_seconds", remaining).
		Msg("Exam started")
	c.notify()
	return nil
}

// SelectAnswer records optionKey for the current question, replacing any
// earlier choice.
func (c *Controller) SelectAnswer(optionKey string) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	q := c.questions[c.current]
	if !q.Options.Has(optionKey) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOption, optionKey)
	}
	if c.answers[q.ID] == optionKey {
		c.mu.Unlock()
		return nil
	}
	c.answers[q.ID] = optionKey
	c.mu.Unlock()

	c.notify()
	return nil
}

// Navigate moves to the previous or next question. Moving past either end,
// or navigating outside the in-progress phase, is a no-op.
func (c *Controller) Navigate(dir Direction) error {
	var delta int
	switch dir {
	case DirectionPrevious:
		delta = -1
	case DirectionNext:
		delta = 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}

	c.mu.Lock()
	if c.phase != model.PhaseInProgress || c.closed {
		c.mu.Unlock()
		return nil
	}
	next := c.current + delta
	if next < 0 || next >= len(c.questions) {
		c.mu.Unlock()
		return nil
	}
	c.current = next
	c.mu.Unlock()

	c.notify()
	return nil
}

// Submit hands the recorded answers to the exam service. Only the first
// call does anything; the submitted latch is set before the request leaves.
func (c *Controller) Submit(ctx context.Context) error {
	return c.submit(ctx, "manual")
}

func (c *Controller) submit(ctx context.Context, trigger string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.submitted {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if c.phase != model.PhaseInProgress {
		c.mu.Unlock()
		return ErrNotStarted
	}

	c.submitted = true
	c.phase = model.PhaseSubmitted
	c.stopTimerLocked()
	c.payload = c.payloadLocked()
	c.inFlight = true
	payload := c.payload
	c.mu.Unlock()

	c.log.Info().
		Str("trigger", trigger).
		Stringer("session_id", payload.SessionID).
		Int("answers", len(payload.Answers)).
		Msg("Submitting exam")
	c.notify()

	return c.send(ctx, payload)
}

// RetrySubmit resends the frozen payload of a failed submission.
func (c *Controller) RetrySubmit(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.submitted:
		c.mu.Unlock()
		return ErrNotStarted
	case c.inFlight:
		c.mu.Unlock()
		return ErrRequestInFlight
	case c.submitErr == nil:
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.inFlight = true
	payload := c.payload
	c.mu.Unlock()

	c.notify()
	return c.send(ctx, payload)
}

// Retry repeats whichever remote call last failed.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	submitted := c.submitted
	c.mu.Unlock()

	if submitted {
		return c.RetrySubmit(ctx)
	}
	return c.RetryStart(ctx)
}

// send runs detached from ctx's cancellation: leaving the view must not
// abort a submission that is already on the wire.
func (c *Controller) send(ctx context.Context, payload *model.SubmitExamRequest) error {
	resp, err := c.svc.Submit(context.WithoutCancel(ctx), c.credential, payload)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.submitErr = err
		c.mu.Unlock()

		c.log.Error().Err(err).Stringer("session_id", payload.SessionID).Msg("Exam submit failed")
		c.notify()
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	score := *resp.Score
	c.score = &score
	c.submitErr = nil
	c.mu.Unlock()

	c.log.Info().Stringer("session_id", payload.SessionID).Float64("score", score).Msg("Exam scored")
	c.notify()
	return nil
}

// tick runs once per second on the countdown goroutine.
func (c *Controller) tick() (expired bool) {
	c.mu.Lock()
	if c.submitted || c.closed || c.phase != model.PhaseInProgress {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	expired = c.remaining <= 0
	c.mu.Unlock()

	c.notify()
	return expired
}

func (c *Controller) expire() {
	err := c.submit(context.Background(), "timeout")
	if err != nil && !errors.Is(err, ErrAlreadySubmitted) && !errors.Is(err, ErrNotStarted) && !errors.Is(err, ErrClosed) {
		c.log.Warn().Err(err).Msg("Automatic submission did not complete")
	}
}

// Close stops the countdown and detaches the controller from its view.
// An in-flight submission is left to finish on its own.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	close(c.done)
	c.mu.Unlock()

	c.lmu.Lock()
	c.listeners = make(map[int]func(Snapshot))
	c.lmu.Unlock()
}

// Exit closes the controller and runs the view's exit callback once.
func (c *Controller) Exit() {
	c.Close()
	c.exitOnce.Do(func() {
		if c.onExit != nil {
			c.onExit()
		}
	})
}

// Done is closed once the controller has been closed or exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Subscribe registers fn for snapshots and returns its cancel function.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Phase:          c.phase,
		SessionID:      c.sessionID,
		CurrentIndex:   c.current,
		TotalQuestions: len(c.questions),
		Answers:        make(map[int]string, len(c.answers)),
		AnsweredCount:  len(c.answers),
		TimeRemaining:  c.remaining,
		Clock:          FormatClock(c.remaining),
		Submitted:      c.submitted,
		Submitting:     c.submitted && c.inFlight,
	}
	for k, v := range c.answers {
		s.Answers[k] = v
	}
	if c.score != nil {
		score := *c.score
		s.Score = &score
	}

	if c.phase == model.PhaseInProgress {
		q := c.questions[c.current]
		s.Question = &q
		s.SelectedOption = c.answers[q.ID]
		s.CanPrevious = c.current > 0
		s.CanNext = c.current < len(c.questions)-1
	}

	switch {
	case c.phase == model.PhaseLoading && c.startErr != nil:
		s.Error = startError(c.startErr)
	case c.submitted && c.submitErr != nil:
		s.Error = submitError(c.submitErr)
	}
	return s
}

// editableLocked reports why answers cannot change right now, if they can't.
func (c *Controller) editableLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.submitted:
		return ErrAlreadySubmitted
	case c.phase != model.PhaseInProgress || len(c.questions) == 0:
		return ErrNotStarted
	}
	return nil
}

// payloadLocked freezes the answers in question order. Unanswered questions
// are left out.
func (c *Controller) payloadLocked() *model.SubmitExamRequest {
	records := make([]model.AnswerRecord, 0, len(c.answers))
	for _, q := range c.questions {
		if key, ok := c.answers[q.ID]; ok {
			records = append(records, model.AnswerRecord{QuestionID: q.ID, ChosenOption: key})
		}
	}
	return &model.SubmitExamRequest{SessionID: c.sessionID, Answers: records}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
}

func (c *Controller) notify() {
	c.nmu.Lock()
	defer c.nmu.Unlock()

	snap := c.Snapshot()

	c.lmu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
