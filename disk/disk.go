package disk

import (
	"errors"
	"fmt"
	"io"
)

// Block is a 1024-byte buffer
type Block = []byte

const BlockSize uint64 = 1024

var (
	// ErrShortRead is returned when the backing store ends before the
	// requested block does.
	ErrShortRead = fmt.Errorf("disk: short read: %w", io.ErrUnexpectedEOF)

	// ErrOutOfRange is returned by fixed-size disks for addresses past their
	// last block.
	ErrOutOfRange = errors.New("disk: block address out of range")
)

// Disk provides access to a logical block-based disk
//
// Every implementation serializes its operations with a single lock; two
// calls never interleave, even on different blocks. There is no cache: each
// Read goes to the backing store.
type Disk interface {
	// Read reads a disk block by address
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects len(b) == BlockSize.
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects len(v) == BlockSize.
	Write(a uint64, v Block) error

	// Size reports how many blocks the backing store currently holds
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// DiskWriteBatch is implemented by disks that can write a contiguous run of
// blocks in one operation.
type DiskWriteBatch interface {
	WriteBatch(startPos uint64, blocks []Block) error
}

func checkBlock(b Block) {
	if uint64(len(b)) != BlockSize {
		panic(fmt.Errorf("buffer is not block-sized (%d bytes)", len(b)))
	}
}
