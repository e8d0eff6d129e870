package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stemsi/exstem-client/internal/exam"
	"github.com/stemsi/exstem-client/internal/model"
)

const helpLine = "Commands: a-d select | n next | p previous | s submit | r retry | q quit"

// screen redraws the exam on every change. Ticks that only move the clock
// rewrite the status line in place.
type screen struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

func (s *screen) render(snap exam.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := frameKey(snap)
	if key == s.last {
		fmt.Fprintf(s.out, "\r%s ", statusLine(snap))
		return
	}
	s.last = key

	var b strings.Builder
	b.WriteString("\n")
	switch {
	case snap.Phase == model.PhaseLoading:
		b.WriteString("Loading exam...\n")
	case snap.Phase == model.PhaseSubmitted:
		writeResult(&b, snap)
	case snap.Question != nil:
		writeQuestion(&b, snap)
	}
	if snap.Error != nil {
		fmt.Fprintf(&b, "! %s\n", snap.Error.Message)
		if snap.Error.Retryable {
			b.WriteString("  Type r to retry.\n")
		}
	}
	if snap.Phase == model.PhaseInProgress {
		b.WriteString(helpLine + "\n")
	}
	b.WriteString(statusLine(snap) + " ")
	fmt.Fprint(s.out, b.String())
}

func writeQuestion(b *strings.Builder, snap exam.Snapshot) {
	q := snap.Question
	fmt.Fprintf(b, "Question %d of %d\n", snap.CurrentIndex+1, snap.TotalQuestions)
	fmt.Fprintf(b, "%s\n\n", q.Text)
	for _, opt := range q.Options {
		mark := " "
		if opt.Key == snap.SelectedOption {
			mark = "x"
		}
		fmt.Fprintf(b, "  [%s] %s. %s\n", mark, opt.Key, opt.Text)
	}
	b.WriteString("\n")
}

func writeResult(b *strings.Builder, snap exam.Snapshot) {
	fmt.Fprintf(b, "Answers submitted (%d of %d answered).\n", snap.AnsweredCount, snap.TotalQuestions)
	switch {
	case snap.Submitting:
		b.WriteString("Submitting...\n")
	case snap.Score != nil:
		fmt.Fprintf(b, "Your score: %g\n", *snap.Score)
	}
}

func statusLine(snap exam.Snapshot) string {
	if snap.Phase != model.PhaseInProgress {
		return ""
	}
	return fmt.Sprintf("Time left %s | answered %d/%d >", snap.Clock, snap.AnsweredCount, snap.TotalQuestions)
}

// frameKey captures everything except the clock, so a tick alone does not
// redraw the question.
func frameKey(snap exam.Snapshot) string {
	errCode := ""
	if snap.Error != nil {
		errCode = string(snap.Error.Code) + snap.Error.Detail
	}
	score := ""
	if snap.Score != nil {
		score = fmt.Sprintf("%g", *snap.Score)
	}
	return fmt.Sprintf("%s|%d|%s|%d|%t|%s|%s",
		snap.Phase, snap.CurrentIndex, snap.SelectedOption, snap.AnsweredCount, snap.Submitting, score, errCode)
}
