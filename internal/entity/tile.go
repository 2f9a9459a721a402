package entity

import (
	"fmt"
	"io"
	"time"
)

type TileKey struct {
	Z int `validate:"min=0,max=20"`
	X int `validate:"min=0"`
	Y int `validate:"min=0"`
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// Tile is a resolved cache entry ready to be streamed to the client.
// The caller owns Body and must close it.
type Tile struct {
	Key          TileKey
	Body         io.ReadCloser
	Size         int64
	LastModified time.Time
	Expires      time.Time
	MaxAge       time.Duration
}
