package tempaudio

import (
	"io"
	"os"
)

// FS is the slice of the filesystem the temp directory needs.
type FS interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(name string, data []byte) error
	Create(name string) (io.WriteCloser, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(path string) error
}

// OS is the real filesystem.
type OS struct{}

func (OS) MkdirTemp(dir, pattern string) (string, error) { return os.MkdirTemp(dir, pattern) }

func (OS) WriteFile(name string, data []byte) error { return os.WriteFile(name, data, 0o600) }

func (OS) Create(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

func (OS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OS) Remove(name string) error { return os.Remove(name) }

func (OS) RemoveAll(path string) error { return os.RemoveAll(path) }
