package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine talks to a synthesis helper process: one JSON request on stdin,
// JSON lines carrying base64 audio on stdout.
type execEngine struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Slow     bool   `json:"slow"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format,omitempty"`
}

func NewExecEngine(command string) (Engine, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	var buf bytes.Buffer
	format, err := e.SynthesizeTo(ctx, req, &buf)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: buf.Bytes(), Format: format}, nil
}

func (e *execEngine) SynthesizeTo(ctx context.Context, req Request, w io.Writer) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: req.Text, Language: req.Language, Slow: req.Slow})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start tts command: %w", err)
	}

	format := ""
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return "", fmt.Errorf("decode tts response: %w", err)
		}
		audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			_ = cmd.Wait()
			return "", fmt.Errorf("decode tts audio: %w", err)
		}
		if _, err := w.Write(audio); err != nil {
			_ = cmd.Wait()
			return "", err
		}
		if resp.Format != "" {
			format = resp.Format
		}
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	if scanErr != nil {
		return "", scanErr
	}
	return format, nil
}
