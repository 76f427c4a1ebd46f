// Package speech provides Patch's input and output collaborator seams. The
// core only needs a line of text in and a line of speech out; hardware
// capture and synthesis live behind these interfaces.
package speech

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNoInput = errors.New("no input available")
	ErrClosed  = errors.New("input source closed")
)

// InputSource yields one line of user input per call. ErrNoInput means the
// turn is skipped; ErrClosed means the source is gone and the loop should
// end.
type InputSource interface {
	// Name returns the source identifier (e.g., "console", "microphone")
	Name() string

	// Listen blocks for the next line of input
	Listen(ctx context.Context) (string, error)
}

// OutputSink accepts text to speak or print. Implementations must never
// block a ledger critical section; callers only invoke Say outside locks.
type OutputSink interface {
	// Name returns the sink identifier (e.g., "console", "tts")
	Name() string

	// Say emits one utterance
	Say(text string)

	// PlayCue plays a named system cue ("boot", "poweroff")
	PlayCue(cue string)
}
