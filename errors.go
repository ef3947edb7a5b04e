package geo_store

import (
	"github.com/pkg/errors"

	"github.com/echoface/geo_store/shard"
)

var (
	// ErrIO file open/read/write/delete failure, matched by every *IOError
	ErrIO = shard.ErrIO
	// ErrNotFound order or element id outside the recorded range
	ErrNotFound = shard.ErrNotFound
	// ErrClosed operation on a closed store or shard
	ErrClosed = shard.ErrClosed

	ErrNotImplemented = errors.New("not implemented")

	// ErrStopVisit a visitor returns it to end a search early without error
	ErrStopVisit = errors.New("stop visit")
)

type IOError = shard.IOError
