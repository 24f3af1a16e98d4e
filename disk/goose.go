package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// physical goose blocks hold this many of our blocks
const perGooseBlock = gdisk.BlockSize / BlockSize

var _ Disk = (*GooseDisk)(nil)

// GooseDisk lays BlockSize blocks over a goose disk, packing perGooseBlock
// of them into each goose block. Writes read-modify-write the goose block.
type GooseDisk struct {
	mu     *sync.Mutex
	d      gdisk.Disk
	closed bool
}

func NewGooseDisk(d gdisk.Disk) *GooseDisk {
	if gdisk.BlockSize%BlockSize != 0 {
		panic("goose block size is not a multiple of BlockSize")
	}
	return &GooseDisk{mu: new(sync.Mutex), d: d}
}

// physAddr returns the goose block holding a and the byte offset of a in it.
//
// assumes caller holds d.mu
func (d *GooseDisk) physAddr(a uint64) (uint64, uint64, error) {
	if d.closed {
		panic("goose disk is closed")
	}
	phys := a / perGooseBlock
	if phys >= d.d.Size() {
		return 0, 0, fmt.Errorf("block %d: %w", a, ErrOutOfRange)
	}
	return phys, (a % perGooseBlock) * BlockSize, nil
}

func (d *GooseDisk) ReadTo(a uint64, buf Block) error {
	checkBlock(buf)
	d.mu.Lock()
	defer d.mu.Unlock()
	phys, off, err := d.physAddr(a)
	if err != nil {
		return err
	}
	blk := d.d.Read(phys)
	copy(buf, blk[off:off+BlockSize])
	return nil
}

func (d *GooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *GooseDisk) Write(a uint64, v Block) error {
	checkBlock(v)
	d.mu.Lock()
	defer d.mu.Unlock()
	phys, off, err := d.physAddr(a)
	if err != nil {
		return err
	}
	blk := d.d.Read(phys)
	copy(blk[off:off+BlockSize], v)
	d.d.Write(phys, blk)
	return nil
}

func (d *GooseDisk) Size() (uint64, error) {
	return d.d.Size() * perGooseBlock, nil
}

func (d *GooseDisk) Barrier() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.d.Barrier()
	return nil
}

func (d *GooseDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		panic("goose disk is closed")
	}
	d.closed = true
	d.d.Close()
	return nil
}
