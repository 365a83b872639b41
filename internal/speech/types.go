package speech

import (
	"context"
	"errors"
	"io"
)

// ErrSynthesis is the single error kind reported for any synthesis failure:
// rejected input, unsupported language, or engine/network errors.
var ErrSynthesis = errors.New("speech synthesis failed")

// Audio formats produced by engines. They double as temp file extensions.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

// Request is what an engine receives for one synthesis call.
type Request struct {
	Text     string
	Language string
	Slow     bool
}

// Artifact is an encoded audio payload. It only lives between synthesis and playback.
type Artifact struct {
	Data   []byte
	Format string
}

// Engine is the contract for an external synthesis backend.
type Engine interface {
	Synthesize(ctx context.Context, req Request) (Artifact, error)
}

// StreamEngine is implemented by engines that can write audio straight into a writer.
type StreamEngine interface {
	SynthesizeTo(ctx context.Context, req Request, w io.Writer) (format string, err error)
}

// Settings is the adapter configuration applied to every utterance.
type Settings struct {
	Language string
	Slow     bool
	Volume   float64
}
