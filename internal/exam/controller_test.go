package exam

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records calls and replays canned results.
type fakeService struct {
	mu         sync.Mutex
	startResp  *model.StartExamResponse
	startErrs  []error
	submitErrs []error
	score      float64
	startCalls int
	submits    []*model.SubmitExamRequest
}

func (f *fakeService) Start(_ context.Context, credential string) (*model.StartExamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return nil, err
	}
	return f.startResp, nil
}

func (f *fakeService) Submit(_ context.Context, _ string, req *model.SubmitExamRequest) (*model.SubmitExamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return nil, err
	}
	score := f.score
	return &model.SubmitExamResponse{Message: "submitted", Score: &score}, nil
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeService) lastSubmit() *model.SubmitExamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		return nil
	}
	return f.submits[len(f.submits)-1]
}

// manualTicker hands the countdown a channel the test drives itself.
type manualTicker struct {
	ch      chan time.Time
	started atomic.Int32
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) Func(time.Duration) (<-chan time.Time, func()) {
	m.started.Add(1)
	return m.ch, func() { m.stopped.Store(true) }
}

// tick delivers one tick, giving up quietly if nobody is listening anymore.
func (m *manualTicker) tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func threeQuestions() *model.StartExamResponse {
	opts := model.OptionSet{{Key: "A", Text: "1"}, {Key: "B", Text: "2"}, {Key: "C", Text: "3"}, {Key: "D", Text: "4"}}
	return &model.StartExamResponse{
		SessionID: "12",
		Questions: []model.Question{
			{ID: 1, Text: "What is 2 + 2?", Options: opts},
			{ID: 2, Text: "Capital of France?", Options: opts},
			{ID: 3, Text: "React is a ___?", Options: opts},
		},
	}
}

func newTestController(t *testing.T, svc *fakeService, duration int) (*Controller, *manualTicker) {
	t.Helper()
	tk := newManualTicker()
	c := NewController(svc, Options{
		Credential:      "token",
		DurationSeconds: duration,
		Ticker:          tk.Func,
		Logger:          zerolog.Nop(),
	})
	t.Cleanup(c.Close)
	return c, tk
}

func startedController(t *testing.T, svc *fakeService, duration int) (*Controller, *manualTicker) {
	t.Helper()
	c, tk := newTestController(t, svc, duration)
	require.NoError(t, c.Start(context.Background()))
	return c, tk
}

func waitRemaining(t *testing.T, c *Controller, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().TimeRemaining == want
	}, time.Second, 5*time.Millisecond, "time remaining never reached %d", want)
}

func TestStart_InitialState(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions()}
	c, tk := startedController(t, svc, 1800)

	s := c.Snapshot()
	assert.Equal(t, model.PhaseInProgress, s.Phase)
	assert.Equal(t, model.SessionID("12"), s.SessionID)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, 3, s.TotalQuestions)
	assert.Equal(t, 1800, s.TimeRemaining)
	assert.Equal(t, "30:00", s.Clock)
	require.NotNil(t, s.Question)
	assert.Equal(t, 1, s.Question.ID)
	assert.False(t, s.CanPrevious)
	assert.True(t, s.CanNext)
	assert.Nil(t, s.Error)
	assert.Equal(t, int32(1), tk.started.Load())

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, svc.startCalls)
}

func TestStart_ServerSuppliedDuration(t *testing.T) {
	resp := threeQuestions()
	resp.DurationSeconds = 90
	c, _ := startedController(t, &fakeService{startResp: resp}, 1800)

	assert.Equal(t, 90, c.Snapshot().TimeRemaining)
	assert.Equal(t, "1:30", c.Snapshot().Clock)
}

func TestStart_FailureStaysLoading(t *testing.T) {
	transport := errors.New("dial tcp: connection refused")
	svc := &fakeService{startResp: threeQuestions(), startErrs: []error{transport}}
	c, tk := newTestController(t, svc, 1800)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorIs(t, err, transport)

	s := c.Snapshot()
	assert.Equal(t, model.PhaseLoading, s.Phase)
	assert.Nil(t, s.Question)
	require.NotNil(t, s.Error)
	assert.Equal(t, CodeStartFailed, s.Error.Code)
	assert.True(t, s.Error.Retryable)
	assert.Equal(t, int32(0), tk.started.Load(), "no timer may start before the session exists")

	assert.ErrorIs(t, c.SelectAnswer("A"), ErrNotStarted)
	assert.ErrorIs(t, c.Submit(context.Background()), ErrNotStarted)
	assert.Equal(t, 0, svc.submitCount())
}

func TestRetryStart(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions(), startErrs: []error{errors.New("boom")}}
	c, tk := newTestController(t, svc, 60)

	assert.ErrorIs(t, c.RetryStart(context.Background()), ErrNothingToRetry)
	require.Error(t, c.Start(context.Background()))

	require.NoError(t, c.RetryStart(context.Background()))
	s := c.Snapshot()
	assert.Equal(t, model.PhaseInProgress, s.Phase)
	assert.Nil(t, s.Error)
	assert.Equal(t, 2, svc.startCalls)
	assert.Equal(t, int32(1), tk.started.Load())

	assert.ErrorIs(t, c.RetryStart(context.Background()), ErrNothingToRetry)
}

func TestStart_EmptyQuestionSetIsAFailure(t *testing.T) {
	svc := &fakeService{startResp: &model.StartExamResponse{SessionID: "1"}}
	c, _ := newTestController(t, svc, 60)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.Equal(t, model.PhaseLoading, c.Snapshot().Phase)
}

func TestNavigate_Bounds(t *testing.T) {
	c, _ := startedController(t, &fakeService{startResp: threeQuestions()}, 60)

	require.NoError(t, c.Navigate(DirectionPrevious))
	assert.Equal(t, 0, c.Snapshot().CurrentIndex)

	require.NoError(t, c.Navigate(DirectionNext))
	assert.Equal(t, 1, c.Snapshot().CurrentIndex)
	require.NoError(t, c.Navigate(DirectionNext))
	assert.Equal(t, 2, c.Snapshot().CurrentIndex)
	assert.False(t, c.Snapshot().CanNext)

	require.NoError(t, c.Navigate(DirectionNext))
	assert.Equal(t, 2, c.Snapshot().CurrentIndex)

	require.NoError(t, c.Navigate(DirectionPrevious))
	assert.Equal(t, 1, c.Snapshot().CurrentIndex)

	assert.ErrorIs(t, c.Navigate("sideways"), ErrInvalidDirection)
}

func TestSelectAnswer_Overwrite(t *testing.T) {
	c, _ := startedController(t, &fakeService{startResp: threeQuestions()}, 60)

	require.NoError(t, c.SelectAnswer("B"))
	require.NoError(t, c.SelectAnswer("A"))
	require.NoError(t, c.SelectAnswer("A"))

	s := c.Snapshot()
	assert.Equal(t, map[int]string{1: "A"}, s.Answers)
	assert.Equal(t, "A", s.SelectedOption)
	assert.Equal(t, 1, s.AnsweredCount)
}

func TestSelectAnswer_RejectsUnknownOption(t *testing.T) {
	c, _ := startedController(t, &fakeService{startResp: threeQuestions()}, 60)

	assert.ErrorIs(t, c.SelectAnswer("E"), ErrUnknownOption)
	assert.Empty(t, c.Snapshot().Answers)
}

func TestSubmit_PayloadOmitsUnanswered(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions(), score: 2}
	c, _ := startedController(t, svc, 60)

	require.NoError(t, c.SelectAnswer("C"))
	require.NoError(t, c.Navigate(DirectionNext))
	require.NoError(t, c.SelectAnswer("B"))
	require.NoError(t, c.Navigate(DirectionNext))
	require.NoError(t, c.Submit(context.Background()))

	require.Equal(t, 1, svc.submitCount())
	got := svc.lastSubmit()
	assert.Equal(t, model.SessionID("12"), got.SessionID)
	assert.Equal(t, []model.AnswerRecord{
		{QuestionID: 1, ChosenOption: "C"},
		{QuestionID: 2, ChosenOption: "B"},
	}, got.Answers)

	s := c.Snapshot()
	assert.Equal(t, model.PhaseSubmitted, s.Phase)
	assert.True(t, s.Submitted)
	require.NotNil(t, s.Score)
	assert.Equal(t, 2.0, *s.Score)
	assert.Nil(t, s.Question)
}

func TestSubmit_LastSelectionWins(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions()}
	c, _ := startedController(t, svc, 60)

	require.NoError(t, c.SelectAnswer("A"))
	require.NoError(t, c.Navigate(DirectionNext))
	require.NoError(t, c.Navigate(DirectionPrevious))
	require.NoError(t, c.SelectAnswer("D"))
	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, []model.AnswerRecord{{QuestionID: 1, ChosenOption: "D"}}, svc.lastSubmit().Answers)
}

func TestSubmit_FrozenAfterSubmission(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions()}
	c, tk := startedController(t, svc, 60)

	require.NoError(t, c.SelectAnswer("A"))
	require.NoError(t, c.Navigate(DirectionNext))
	require.NoError(t, c.Submit(context.Background()))
	before := c.Snapshot()

	assert.ErrorIs(t, c.SelectAnswer("B"), ErrAlreadySubmitted)
	require.NoError(t, c.Navigate(DirectionPrevious))
	require.NoError(t, c.Navigate(DirectionNext))
	assert.ErrorIs(t, c.Submit(context.Background()), ErrAlreadySubmitted)
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	after := c.Snapshot()
	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.CurrentIndex, after.CurrentIndex)
	assert.Equal(t, 1, svc.submitCount())
	assert.True(t, tk.stopped.Load(), "countdown must stop on submission")
}

func TestCountdown_DecrementsByOne(t *testing.T) {
	c, tk := startedController(t, &fakeService{startResp: threeQuestions()}, 5)

	for want := 4; want >= 2; want-- {
		require.True(t, tk.tick())
		waitRemaining(t, c, want)
	}
	assert.Equal(t, model.PhaseInProgress, c.Snapshot().Phase)
}

func TestCountdown_FreezesOnSubmit(t *testing.T) {
	c, tk := startedController(t, &fakeService{startResp: threeQuestions()}, 10)

	require.True(t, tk.tick())
	waitRemaining(t, c, 9)
	require.NoError(t, c.Submit(context.Background()))

	tk.tick()
	tk.tick()
	assert.Equal(t, 9, c.Snapshot().TimeRemaining)
}

func TestCountdown_AutoSubmitsOnExpiry(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions(), score: 1}
	c, tk := startedController(t, svc, 3)

	require.NoError(t, c.SelectAnswer("B"))
	for i := 0; i < 3; i++ {
		require.True(t, tk.tick())
	}

	require.Eventually(t, func() bool {
		return c.Snapshot().Score != nil
	}, time.Second, 5*time.Millisecond)

	s := c.Snapshot()
	assert.Equal(t, 0, s.TimeRemaining)
	assert.Equal(t, model.PhaseSubmitted, s.Phase)
	assert.Equal(t, 1, svc.submitCount())
	assert.Equal(t, []model.AnswerRecord{{QuestionID: 1, ChosenOption: "B"}}, svc.lastSubmit().Answers)
	assert.True(t, tk.stopped.Load())
	assert.False(t, tk.tick(), "no tick may be consumed after expiry")
}

func TestSubmit_ManualAndTimeoutRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc := &fakeService{startResp: threeQuestions()}
		c, tk := startedController(t, svc, 1)

		var wg sync.WaitGroup
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Submit(context.Background())
			}()
		}
		tk.tick()
		wg.Wait()

		require.Eventually(t, func() bool {
			return c.Snapshot().Score != nil
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, svc.submitCount())
	}
}

func TestSubmit_FailureThenRetrySendsSamePayload(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions(), submitErrs: []error{errors.New("502 bad gateway")}, score: 1}
	c, _ := startedController(t, svc, 60)

	require.NoError(t, c.SelectAnswer("A"))
	err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitFailed)

	s := c.Snapshot()
	assert.True(t, s.Submitted)
	assert.Nil(t, s.Score)
	require.NotNil(t, s.Error)
	assert.Equal(t, CodeSubmitFailed, s.Error.Code)

	assert.ErrorIs(t, c.SelectAnswer("B"), ErrAlreadySubmitted)
	assert.ErrorIs(t, c.RetryStart(context.Background()), ErrNothingToRetry)

	require.NoError(t, c.Retry(context.Background()))
	require.Equal(t, 2, svc.submitCount())
	assert.Equal(t, svc.submits[0], svc.submits[1])

	s = c.Snapshot()
	require.NotNil(t, s.Score)
	assert.Nil(t, s.Error)
	assert.ErrorIs(t, c.RetrySubmit(context.Background()), ErrNothingToRetry)
}

func TestSubmit_SurvivesCancelledContext(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions()}
	c, _ := startedController(t, svc, 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Submit(ctx))
	assert.NotNil(t, c.Snapshot().Score)
}

func TestExit_StopsTimerAndCallsBackOnce(t *testing.T) {
	var exits atomic.Int32
	tk := newManualTicker()
	c := NewController(&fakeService{startResp: threeQuestions()}, Options{
		Credential:      "token",
		DurationSeconds: 60,
		Ticker:          tk.Func,
		OnExit:          func() { exits.Add(1) },
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, c.Start(context.Background()))

	c.Exit()
	c.Exit()

	assert.Equal(t, int32(1), exits.Load())
	assert.True(t, tk.stopped.Load())
	assert.ErrorIs(t, c.SelectAnswer("A"), ErrClosed)
	tk.tick()
	assert.Equal(t, 60, c.Snapshot().TimeRemaining)
}

func TestSubscribe_ReceivesTicks(t *testing.T) {
	c, tk := newTestController(t, &fakeService{startResp: threeQuestions()}, 30)

	seen := make(chan Snapshot, 8)
	unsubscribe := c.Subscribe(func(s Snapshot) { seen <- s })
	require.NoError(t, c.Start(context.Background()))

	first := <-seen
	assert.Equal(t, model.PhaseInProgress, first.Phase)

	require.True(t, tk.tick())
	select {
	case s := <-seen:
		assert.Equal(t, 29, s.TimeRemaining)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after tick")
	}

	unsubscribe()
	require.True(t, tk.tick())
	waitRemaining(t, c, 28)
	assert.Empty(t, seen)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "30:00", FormatClock(1800))
	assert.Equal(t, "0:09", FormatClock(9))
	assert.Equal(t, "0:00", FormatClock(-3))
}

func TestSubmit_AfterExitSendsNothing(t *testing.T) {
	svc := &fakeService{startResp: threeQuestions()}
	c, _ := startedController(t, svc, 60)
	require.NoError(t, c.SelectAnswer("A"))

	c.Exit()
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after exit")
	}

	assert.ErrorIs(t, c.Submit(context.Background()), ErrClosed)
	assert.Equal(t, 0, svc.submitCount())
	s := c.Snapshot()
	assert.False(t, s.Submitted)
	assert.Equal(t, model.PhaseInProgress, s.Phase)
}

func TestSubscribe_SnapshotsArriveInOrder(t *testing.T) {
	c, tk := startedController(t, &fakeService{startResp: threeQuestions()}, 60)

	var mu sync.Mutex
	var seen []Snapshot
	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tk.tick()
		}
	}()
	for i := 0; i < 50; i++ {
		key := "A"
		if i%2 == 1 {
			key = "B"
		}
		require.NoError(t, c.SelectAnswer(key))
	}
	wg.Wait()
	require.NoError(t, c.Submit(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	submitted := false
	for i, s := range seen {
		if i > 0 {
			assert.LessOrEqual(t, s.TimeRemaining, seen[i-1].TimeRemaining, "snapshot %d went back in time", i)
		}
		if submitted {
			assert.True(t, s.Submitted, "snapshot %d after submission", i)
		}
		submitted = submitted || s.Submitted
	}
	assert.True(t, seen[len(seen)-1].Submitted)
}
