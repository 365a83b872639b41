package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	espeakNormalRate = 175
	espeakSlowRate   = 120
)

type espeakEngine struct {
	binary string
}

// NewEspeakEngine renders WAV audio locally with espeak-ng (or espeak).
func NewEspeakEngine() (Engine, error) {
	for _, bin := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(bin); err == nil {
			return &espeakEngine{binary: path}, nil
		}
	}
	return nil, errors.New("speech not available: install espeak-ng or espeak")
}

func (e *espeakEngine) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	cmd := exec.CommandContext(ctx, e.binary, espeakArgs(req)...)
	cmd.Stdin = strings.NewReader(req.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Artifact{}, fmt.Errorf("espeak failed: %w: %s", err, stderr.String())
	}
	return Artifact{Data: out, Format: FormatWAV}, nil
}

// espeakArgs feeds the text through stdin so a leading dash is never read as
// an option.
func espeakArgs(req Request) []string {
	rate := espeakNormalRate
	if req.Slow {
		rate = espeakSlowRate
	}
	return []string{"-v", req.Language, "-s", strconv.Itoa(rate), "--stdout", "--stdin"}
}
