package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/patch/internal/bus"
)

var (
	nonASCII  = regexp.MustCompile(`[^\x00-\x7F]+`)
	emoticons = []string{":)", ":D", ":(", ";)", "XD", "<3"}
)

type readResult struct {
	line string
	err  error
}

// ConsoleInput reads lines from a terminal. A single reader goroutine owns
// the underlying stream, so a line typed while no Listen is pending is
// delivered to the next call instead of being lost.
type ConsoleInput struct {
	lines chan readResult
}

// NewConsoleInput creates an input source reading from r (stdin when nil).
func NewConsoleInput(r io.Reader) *ConsoleInput {
	if r == nil {
		r = os.Stdin
	}
	c := &ConsoleInput{lines: make(chan readResult)}
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			c.lines <- readResult{line, err}
			if err != nil {
				close(c.lines)
				return
			}
		}
	}()
	return c
}

func (c *ConsoleInput) Name() string { return "console" }

// Listen blocks for the next line. An empty line is reported as ErrNoInput
// so the loop skips the turn.
func (c *ConsoleInput) Listen(ctx context.Context) (string, error) {
	fmt.Print("YOU: ")

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-c.lines:
		if !ok {
			return "", ErrClosed
		}
		if res.err != nil {
			if res.err == io.EOF {
				return "", ErrClosed
			}
			return "", ErrNoInput
		}
		line := strings.TrimSpace(res.line)
		if line == "" {
			return "", ErrNoInput
		}
		return line, nil
	}
}

// ConsoleOutput prints utterances, standing in for voice synthesis. Text is
// scrubbed of non-ASCII and emoticons the same way the voice path requires.
type ConsoleOutput struct {
	out    io.Writer
	events *bus.EventBus
	logger zerolog.Logger
}

// NewConsoleOutput creates an output sink writing to w (stdout when nil).
func NewConsoleOutput(w io.Writer, events *bus.EventBus, logger zerolog.Logger) *ConsoleOutput {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{
		out:    w,
		events: events,
		logger: logger.With().Str("component", "speech").Logger(),
	}
}

func (c *ConsoleOutput) Name() string { return "console" }

// Say emits one utterance.
func (c *ConsoleOutput) Say(text string) {
	clean := Scrub(text)
	if clean == "" {
		return
	}

	if c.events != nil {
		c.events.Publish(bus.Event{Type: bus.EventTypeSpeakingStarted, Data: map[string]any{"text": clean}})
	}

	fmt.Fprintf(c.out, "PATCH: %s\n", clean)
	c.logger.Debug().Str("text", clean).Msg("Spoke")

	if c.events != nil {
		c.events.Publish(bus.Event{Type: bus.EventTypeSpeakingStopped})
	}
}

// PlayCue logs a named system cue in place of audio playback.
func (c *ConsoleOutput) PlayCue(cue string) {
	fmt.Fprintf(c.out, "[%s cue]\n", cue)
	c.logger.Debug().Str("cue", cue).Msg("Played system cue")
}

// Scrub removes everything the voice synthesis path cannot handle.
func Scrub(text string) string {
	clean := nonASCII.ReplaceAllString(text, "")
	for _, e := range emoticons {
		clean = strings.ReplaceAll(clean, e, "")
	}
	return strings.TrimSpace(clean)
}
