package playback

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecDevice plays files through an external player process such as ffplay or
// aplay. The command may use {path}, {volume} (0-100), {rate} and {channels};
// without {path} the file is appended as the last argument.
type ExecDevice struct {
	args []string
	cfg  DeviceConfig
	log  *slog.Logger

	mu      sync.Mutex
	loaded  string
	volume  float64
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	done    chan struct{}
	waitErr error
	closed  bool
}

func OpenExecDevice(command string, cfg DeviceConfig, log *slog.Logger) (*ExecDevice, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	bin, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("audio player unavailable: %w", err)
	}
	args[0] = bin
	log.Info("audio device initialized",
		slog.String("player", bin),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels))
	return &ExecDevice{args: args, cfg: cfg, log: log, volume: 1}, nil
}

func (d *ExecDevice) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if err := Probe(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	d.loaded = path
	return nil
}

func (d *ExecDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if d.loaded == "" {
		return ErrNotLoaded
	}
	if d.cmd != nil {
		d.killLocked()
	}

	args := d.expand(d.loaded)
	cmd := exec.Command(args[0], args[1:]...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	done := make(chan struct{})
	d.cmd, d.stderr, d.done, d.waitErr = cmd, stderr, done, nil
	go func() {
		err := cmd.Wait()
		d.mu.Lock()
		if d.cmd == cmd {
			d.waitErr = err
		}
		d.mu.Unlock()
		close(done)
	}()
	return nil
}

func (d *ExecDevice) Busy() (bool, error) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return false, nil
	}
	select {
	case <-done:
	default:
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.waitErr != nil {
		detail := ""
		if d.stderr != nil {
			detail = strings.TrimSpace(d.stderr.String())
		}
		return false, fmt.Errorf("player exited: %w: %s", d.waitErr, detail)
	}
	return false, nil
}

func (d *ExecDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killLocked()
	return nil
}

func (d *ExecDevice) Unload() error {
	d.mu.Lock()
	d.loaded = ""
	d.mu.Unlock()
	return nil
}

func (d *ExecDevice) SetVolume(level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.volume = clampVolume(level)
	return nil
}

func (d *ExecDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.killLocked()
	d.loaded = ""
	d.closed = true
	d.log.Info("audio device released")
	return nil
}

// killLocked terminates a running player and waits for its reaper.
func (d *ExecDevice) killLocked() {
	if d.cmd == nil {
		return
	}
	cmd, done := d.cmd, d.done
	d.cmd, d.done, d.stderr = nil, nil, nil
	select {
	case <-done:
		return
	default:
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	d.mu.Unlock()
	<-done
	d.mu.Lock()
}

func (d *ExecDevice) expand(path string) []string {
	replacer := strings.NewReplacer(
		"{path}", path,
		"{volume}", strconv.Itoa(int(d.volume*100+0.5)),
		"{rate}", strconv.Itoa(d.cfg.SampleRate),
		"{channels}", strconv.Itoa(d.cfg.Channels),
	)
	out := make([]string, 0, len(d.args)+1)
	hasPath := false
	for _, arg := range d.args {
		if strings.Contains(arg, "{path}") {
			hasPath = true
		}
		out = append(out, replacer.Replace(arg))
	}
	if !hasPath {
		out = append(out, path)
	}
	return out
}
