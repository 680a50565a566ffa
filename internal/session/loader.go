package session

import (
	"os"

	"github.com/pkg/errors"
	"github.com/xelaj/errs"
	dry "github.com/xelaj/go-dry"
)

// SessionLoader is the pluggable persistence boundary; mtproto.NewClient
// (via Config.SessionStorage) accepts any implementation, so callers can swap the file loader below for Redis
// (see redis.go) or their own store without touching the session layer.
type SessionLoader interface {
	Load() (*Session, error)
	Save(s *Session) error
}

type fileLoader struct {
	path string
}

// NewFromFile mirrors the teacher's AuthKeyFile-based storage: one blob per
// file, permissions restricted to the owner.
func NewFromFile(path string) SessionLoader {
	return &fileLoader{path: path}
}

func (f *fileLoader) Load() (*Session, error) {
	if !dry.FileExists(f.path) {
		return nil, errs.NotFound("file", f.path)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "reading session file")
	}
	if len(data) == 0 {
		return nil, errs.NotFound("file", f.path)
	}
	return Decode(data)
}

func (f *fileLoader) Save(s *Session) error {
	if !dry.PathIsWritable(f.path) {
		return errs.Permission(f.path).Scope("write")
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(f.path, data, 0o600), "writing session file")
}
