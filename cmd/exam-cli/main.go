package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/credential"
	"github.com/stemsi/exstem-client/internal/exam"
	"github.com/stemsi/exstem-client/internal/examapi"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/validator"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Logs go to stderr so they never interleave with the rendered exam.
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	validator.Setup()

	// ─── Credential ────────────────────────────────────────────────────
	token := strings.TrimSpace(os.Getenv("EXAM_TOKEN"))
	if token == "" {
		fmt.Print("Enter access token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading token")
			return
		}
		token = strings.TrimSpace(string(raw))
	}

	info, err := credential.Inspect(token, time.Now())
	switch {
	case errors.Is(err, credential.ErrExpired):
		fmt.Println("Error: token has expired, log in again")
		return
	case err != nil:
		fmt.Println("Error: a token is required")
		return
	}

	// ─── Exam Controller ───────────────────────────────────────────────
	apiClient := examapi.NewClient(cfg.ExamAPIURL, cfg.ExamAPITimeout, log)
	view := newScreen(os.Stdout)

	done := make(chan struct{})
	ctrl := exam.NewController(apiClient, exam.Options{
		Credential:      info.Token,
		DurationSeconds: cfg.ExamDurationSeconds,
		Logger:          log,
		OnChange:        view.render,
		OnExit:          func() { close(done) },
	})
	defer ctrl.Exit()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("=== ExStem Exam ===")
	fmt.Println("Starting exam...")
	if err := ctrl.Start(ctx); err != nil {
		log.Debug().Err(err).Msg("Start failed")
	}

	// ─── Command Loop ──────────────────────────────────────────────────
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			ctrl.Exit()
			fmt.Println("\nExam view closed")
			return
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				ctrl.Exit()
				return
			}
			if quit := handleCommand(ctx, ctrl, line, log); quit {
				ctrl.Exit()
				fmt.Println("Exam view closed")
				return
			}
		}
	}
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

// handleCommand applies one typed command. Unknown input prints the help line.
func handleCommand(ctx context.Context, ctrl *exam.Controller, line string, log zerolog.Logger) (quit bool) {
	var err error
	switch cmd := strings.ToLower(line); cmd {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "n", "next":
		err = ctrl.Navigate(exam.DirectionNext)
	case "p", "prev", "previous":
		err = ctrl.Navigate(exam.DirectionPrevious)
	case "s", "submit":
		err = ctrl.Submit(ctx)
	case "r", "retry":
		err = ctrl.Retry(ctx)
	default:
		if len(cmd) == 1 {
			err = ctrl.SelectAnswer(strings.ToUpper(cmd))
		} else {
			fmt.Println(helpLine)
			return false
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, exam.ErrStartFailed), errors.Is(err, exam.ErrSubmitFailed):
		// Already rendered from the snapshot error.
		log.Debug().Err(err).Msg("Remote call failed")
	case errors.Is(err, exam.ErrUnknownOption):
		fmt.Println("That option does not exist for this question.")
	case errors.Is(err, exam.ErrAlreadySubmitted):
		fmt.Println("Answers are already submitted.")
	case errors.Is(err, exam.ErrNotStarted):
		fmt.Println("The exam has not started yet. Type r to retry.")
	case errors.Is(err, exam.ErrNothingToRetry):
		fmt.Println("Nothing to retry.")
	case errors.Is(err, exam.ErrRequestInFlight):
		fmt.Println("Please wait, a request is still running.")
	default:
		fmt.Println("Error:", err)
	}
	return false
}
