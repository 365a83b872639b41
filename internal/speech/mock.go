package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type mockEngine struct {
	sampleRate int
	perRune    time.Duration
}

// NewMockEngine returns an engine producing silent WAV audio whose length grows
// with the text.
func NewMockEngine(sampleRate int) Engine {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &mockEngine{sampleRate: sampleRate, perRune: 5 * time.Millisecond}
}

func (m *mockEngine) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	duration := time.Duration(utf8.RuneCountInString(req.Text)) * m.perRune
	if req.Slow {
		duration *= 2
	}
	data, err := EncodeSilence(m.sampleRate, duration)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: data, Format: FormatWAV}, nil
}

// EncodeSilence renders a mono 16-bit WAV of the given duration.
func EncodeSilence(sampleRate int, duration time.Duration) ([]byte, error) {
	frames := int(duration.Seconds() * float64(sampleRate))
	if frames < 1 {
		frames = 1
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	var out seekBuffer
	enc := wav.NewEncoder(&out, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Bytes(), nil
}

// seekBuffer is an in-memory io.WriteSeeker for the WAV encoder, which rewrites
// the header sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.pos) + offset
	case io.SeekEnd:
		next = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	s.pos = int(next)
	return next, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
