package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/credential"
	"github.com/stemsi/exstem-client/internal/exam"
)

// ErrNoSession is returned when a viewer has no exam open.
var ErrNoSession = errors.New("no exam session for this viewer")

// ExamSessionService keeps at most one exam controller per viewer. A viewer
// is the user behind a credential; opening a new exam discards the old one.
//
// Claims are read unverified, so a view is only handed back to the exact
// token that opened it.
type ExamSessionService struct {
	api      exam.Service
	duration int
	ticker   exam.TickerFunc
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*view
}

type view struct {
	token string
	ctrl  *exam.Controller
}

func (v *view) ownedBy(token string) bool {
	return subtle.ConstantTimeCompare([]byte(v.token), []byte(token)) == 1
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(api exam.Service, cfg *config.Config, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		api:      api,
		duration: cfg.ExamDurationSeconds,
		ticker:   exam.SystemTicker,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		sessions: make(map[string]*view),
	}
}

// WithTicker swaps the countdown source. Used by tests.
func (s *ExamSessionService) WithTicker(t exam.TickerFunc) *ExamSessionService {
	s.ticker = t
	return s
}

// Open creates a controller for the viewer, replacing any previous one, and
// runs its start call. The controller is kept even when start fails so the
// view can retry; the start error is returned alongside it.
//
// A view opened with a different token is only replaced once the exam
// service has accepted the new token with a successful start.
func (s *ExamSessionService) Open(ctx context.Context, info *credential.Info) (*exam.Controller, error) {
	key := info.ViewerKey()
	log := s.log.With().Str("viewer", key).Logger()

	var ctrl *exam.Controller
	ctrl = exam.NewController(s.api, exam.Options{
		Credential:      info.Token,
		DurationSeconds: s.duration,
		Ticker:          s.ticker,
		Logger:          log,
		OnExit: func() {
			s.forget(key, ctrl)
			log.Info().Msg("Exam view exited")
		},
	})

	next := &view{token: info.Token, ctrl: ctrl}

	s.mu.Lock()
	prev := s.sessions[key]
	if prev == nil || prev.ownedBy(info.Token) {
		s.sessions[key] = next
		s.mu.Unlock()

		if prev != nil {
			log.Info().Msg("Replacing open exam view")
			prev.ctrl.Close()
		}
		return ctrl, ctrl.Start(ctx)
	}
	s.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("New credential refused, keeping open exam view")
		ctrl.Close()
		return ctrl, err
	}

	s.mu.Lock()
	prev = s.sessions[key]
	s.sessions[key] = next
	s.mu.Unlock()

	if prev != nil {
		log.Info().Msg("Replacing open exam view opened with another credential")
		prev.ctrl.Close()
	}
	return ctrl, nil
}

// Get returns the viewer's open controller. A token other than the one that
// opened the view gets ErrNoSession.
func (s *ExamSessionService) Get(info *credential.Info) (*exam.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.sessions[info.ViewerKey()]
	if !ok || !v.ownedBy(info.Token) {
		return nil, ErrNoSession
	}
	return v.ctrl, nil
}

// Exit tears down the viewer's exam view and runs its exit callback.
func (s *ExamSessionService) Exit(info *credential.Info) error {
	ctrl, err := s.Get(info)
	if err != nil {
		return err
	}
	ctrl.Exit()
	return nil
}

// Shutdown closes every open controller. In-flight submissions finish on
// their own.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	open := make([]*exam.Controller, 0, len(s.sessions))
	for key, v := range s.sessions {
		open = append(open, v.ctrl)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	for _, ctrl := range open {
		ctrl.Close()
	}
	s.log.Info().Int("closed", len(open)).Msg("Exam views closed")
}

// forget drops key only if it still points at ctrl; a newer view for the
// same viewer must survive the old one's exit.
func (s *ExamSessionService) forget(key string, ctrl *exam.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.sessions[key]; ok && v.ctrl == ctrl {
		delete(s.sessions, key)
	}
}
