// Package console is the terminal line editor shared by the menu and the
// typed-input listener.
package console

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

// ErrClosed is returned once the user interrupts (Ctrl+C) or closes input (Ctrl+D).
var ErrClosed = errors.New("console input closed")

// LineReader reads one line of user input.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// Readline is a LineReader backed by github.com/chzyer/readline.
type Readline struct {
	rl *readline.Instance
}

// Open starts a line editor with history kept in the user temp dir. in and
// out default to the process stdio when nil.
func Open(in io.ReadCloser, out io.Writer) (*Readline, error) {
	cfg := &readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".loqa_voice_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	if in != nil {
		cfg.Stdin = in
	}
	if out != nil {
		cfg.Stdout = out
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	return &Readline{rl: rl}, nil
}

func (r *Readline) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrClosed
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *Readline) Close() error {
	return r.rl.Close()
}

// Script replays fixed lines, then reports ErrClosed. Useful for piping and tests.
type Script struct {
	lines   []string
	Prompts []string
}

func NewScript(lines ...string) *Script {
	return &Script{lines: lines}
}

func (s *Script) ReadLine(prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if len(s.lines) == 0 {
		return "", ErrClosed
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return strings.TrimSpace(line), nil
}

func (s *Script) Close() error {
	s.lines = nil
	return nil
}
