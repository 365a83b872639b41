package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Probe checks that the file at path holds decodable audio, based on its
// extension. Unknown extensions are sniffed from the first bytes.
func Probe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "wav" && ext != "mp3" {
		ext, err = sniff(f)
		if err != nil {
			return err
		}
	}

	switch ext {
	case "wav":
		if !wav.NewDecoder(f).IsValidFile() {
			return errors.New("invalid wav file")
		}
	case "mp3":
		if _, err := mp3.NewDecoder(f); err != nil {
			return fmt.Errorf("invalid mp3 file: %w", err)
		}
	}
	return nil
}

func sniff(f *os.File) (string, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read header: %w", err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav", nil
	case bytes.HasPrefix(head, []byte("ID3")), len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3", nil
	default:
		return "", errors.New("unrecognized audio format")
	}
}
