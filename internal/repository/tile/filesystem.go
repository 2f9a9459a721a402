package tile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640

	tempMarker = ".tmp-"
)

// FilesystemStore lays tiles out as {root}/{z}/{x}/{y}.png.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

var _ TileStore = (*FilesystemStore)(nil)

func (s *FilesystemStore) Path(k entity.TileKey) string {
	return filepath.Join(s.root, strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y)+".png")
}

func (s *FilesystemStore) Stat(k entity.TileKey) (time.Time, bool, error) {
	info, err := os.Stat(s.Path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

func (s *FilesystemStore) Open(k entity.TileKey) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *FilesystemStore) Create(k entity.TileKey) (Writer, error) {
	dst := s.Path(k)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create tile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+tempMarker+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp tile: %w", err)
	}

	return &fileWriter{tmp: tmp, dst: dst}, nil
}

func (s *FilesystemStore) Remove(k entity.TileKey) error {
	err := os.Remove(s.Path(k))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepTemp removes partial downloads older than maxAge. They are left behind only when the process
// dies between Create and Commit/Abort. It returns the number of removed files.
func (s *FilesystemStore) SweepTemp(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.Contains(d.Name(), tempMarker) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep temp tiles: %w", err)
	}
	return removed, nil
}

// fileWriter writes into a temp file next to the destination and renames it into place on Commit,
// so readers never observe a half-written tile.
type fileWriter struct {
	tmp  *os.File
	dst  string
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

func (w *fileWriter) Commit() error {
	if w.done {
		return errors.New("tile writer already finished")
	}
	w.done = true

	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Chmod(w.tmp.Name(), filePerm); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.dst); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
