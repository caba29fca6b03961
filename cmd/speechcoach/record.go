package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"speechcoach/pkg/app"
	"speechcoach/pkg/coach"
	"speechcoach/pkg/errors"
	"speechcoach/pkg/history"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record, transcribe and score one take",
	Long: `Record from the microphone until Enter is pressed or the maximum duration
is reached, then transcribe and score the take and save it to history.
Ctrl-C discards the take.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		sink := newTerminalSink(out)

		a, err := app.New(ctx, cfg, logger, app.Options{
			Events:    sink,
			PromptIn:  os.Stdin,
			PromptOut: out,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		return runRecording(ctx, cmd.Context(), os.Stdin, out, a, sink)
	},
}

// runRecording records one take. Enter stops it; once the session has stopped
// itself at the ceiling, Enter is ignored and the take's outcome is awaited.
// Cancelling ctx discards the take using abortCtx.
func runRecording(ctx, abortCtx context.Context, in io.Reader, out io.Writer, a *app.App, sink *terminalSink) error {
	if err := a.Controller.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, headerStyle.Render("Recording.")+" "+dimStyle.Render(fmt.Sprintf("Press Enter to stop (minimum %ds).", a.Config.Gate.MinSeconds)))

	// stdin is read only after Start so a permission prompt gets the first line
	var enter <-chan struct{}
	pressed := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(pressed)
	}()
	enter = pressed

	for {
		select {
		case <-enter:
			enter = nil
			entry, err := a.Controller.Stop(ctx)
			if errors.IsErrorType(err, errors.ErrInvalidInput) {
				// the ceiling stopped the take first; its result arrives on the sink
				continue
			}
			if err != nil {
				return err
			}
			printEntry(out, entry)
			return nil

		case entry := <-sink.entries:
			printEntry(out, entry)
			return nil

		case failure := <-sink.failures:
			return fmt.Errorf("%s", failure)

		case <-ctx.Done():
			fmt.Fprintln(out)
			if err := a.Controller.Abort(abortCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, dimStyle.Render("Recording discarded."))
			return nil
		}
	}
}

// terminalSink renders controller events on a terminal and surfaces the
// outcome of an auto-stopped take.
type terminalSink struct {
	mu       sync.Mutex
	out      io.Writer
	entries  chan history.Entry
	failures chan string
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{
		out:      out,
		entries:  make(chan history.Entry, 1),
		failures: make(chan string, 1),
	}
}

func (s *terminalSink) StateChanged(state coach.State, reason coach.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case state == coach.StateStopping && reason == coach.ReasonAutoStopped:
		fmt.Fprintln(s.out, "\n"+dimStyle.Render("Maximum duration reached."))
	case state == coach.StateProcessing:
		fmt.Fprintln(s.out, "\n"+dimStyle.Render("Transcribing and analyzing..."))
	}
}

func (s *terminalSink) Elapsed(seconds, maxSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\r%s %ds / %ds ", headerStyle.Render("●"), seconds, maxSeconds)
}

func (s *terminalSink) EntryCreated(entry history.Entry) {
	select {
	case s.entries <- entry:
	default:
	}
}

func (s *terminalSink) Failure(kind, message string) {
	s.mu.Lock()
	fmt.Fprintln(s.out, "\n"+errorStyle.Render(message))
	s.mu.Unlock()
	select {
	case s.failures <- message:
	default:
	}
}

func printEntry(out io.Writer, entry history.Entry) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Score:"), scoreStyle.Render(entry.Analysis.ScoreText()+"/10"))
	fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Feedback:"), entry.Analysis.Feedback)
	fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Transcript:"), entry.Transcript)
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("Saved as %s (%ds, %s)", entry.ID, entry.Duration, entry.Location)))
}
