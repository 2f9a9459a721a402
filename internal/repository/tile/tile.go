package tile

import (
	"errors"
	"io"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
)

var ErrNotFound = errors.New("tile not found")

// TileStore persists tile blobs keyed by (z, x, y).
type TileStore interface {
	// Stat returns the modification time of a stored tile; exists is false when there is none.
	Stat(entity.TileKey) (modTime time.Time, exists bool, err error)
	// Open returns the stored bytes and their size, or ErrNotFound.
	Open(entity.TileKey) (io.ReadCloser, int64, error)
	// Create starts a replacement of the tile. Nothing is visible until Commit.
	Create(entity.TileKey) (Writer, error)
	// Remove deletes the tile. Removing a missing tile is not an error.
	Remove(entity.TileKey) error
}

type Writer interface {
	io.Writer
	Commit() error
	Abort() error
}
