package disk

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-mkfs/util"
)

var _ Disk = (*FileDisk)(nil)
var _ DiskWriteBatch = (*FileDisk)(nil)

// FileDisk is a disk backed by a single flat file, block a at byte offset
// a*BlockSize.
type FileDisk struct {
	mu     *sync.Mutex
	fd     int
	path   string
	closed bool
}

// Mount opens the backing file at path for reading and writing, creating it
// if it does not exist.
func Mount(path string) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", path, err)
	}
	return &FileDisk{
		mu:   new(sync.Mutex),
		fd:   fd,
		path: path,
	}, nil
}

// offset returns the byte offset of a run of nblocks blocks starting at a.
func offset(a uint64, nblocks uint64) (int64, error) {
	if util.SumOverflows(a, nblocks) || util.MulOverflows(a+nblocks, BlockSize) ||
		(a+nblocks)*BlockSize > 1<<63-1 {
		return 0, fmt.Errorf("block %d: %w", a, ErrOutOfRange)
	}
	return int64(a * BlockSize), nil
}

// assumes caller holds d.mu
func (d *FileDisk) checkOpen() {
	if d.closed {
		panic(fmt.Errorf("disk %s is closed", d.path))
	}
}

func (d *FileDisk) ReadTo(a uint64, buf Block) error {
	checkBlock(buf)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	off, err := offset(a, 1)
	if err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, off)
	if err != nil {
		return fmt.Errorf("read block %d: %w", a, err)
	}
	if uint64(n) < BlockSize {
		return fmt.Errorf("read block %d: got %d bytes: %w", a, n, ErrShortRead)
	}
	return nil
}

func (d *FileDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// assumes caller holds d.mu
func (d *FileDisk) pwrite(a uint64, v []byte) error {
	off, err := offset(a, uint64(len(v))/BlockSize)
	if err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, off)
	if err != nil {
		return fmt.Errorf("write block %d: %w", a, err)
	}
	if n < len(v) {
		return fmt.Errorf("write block %d: %w", a, io.ErrShortWrite)
	}
	return nil
}

func (d *FileDisk) Write(a uint64, v Block) error {
	checkBlock(v)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	return d.pwrite(a, v)
}

// WriteBatch writes blocks to [startPos, startPos+len(blocks)) with a single
// pwrite.
func (d *FileDisk) WriteBatch(startPos uint64, blocks []Block) error {
	data := make([]byte, 0, uint64(len(blocks))*BlockSize)
	for _, b := range blocks {
		checkBlock(b)
		data = append(data, b...)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	return d.pwrite(startPos, data)
}

func (d *FileDisk) Size() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	var stat unix.Stat_t
	err := unix.Fstat(d.fd, &stat)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", d.path, err)
	}
	return uint64(stat.Size) / BlockSize, nil
}

func (d *FileDisk) Barrier() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl with F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("sync %s: %w", d.path, err)
	}
	return nil
}

// Close unmounts the disk. Any later call on d panics.
func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen()
	d.closed = true
	err := unix.Close(d.fd)
	if err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

/////////////////////////

var _ Disk = (*MemDisk)(nil)
var _ DiskWriteBatch = (*MemDisk)(nil)

// MemDisk is a fixed-size disk held in memory.
type MemDisk struct {
	l      *sync.Mutex
	blocks [][BlockSize]byte
	closed bool
}

func NewMemDisk(numBlocks uint64) *MemDisk {
	blocks := make([][BlockSize]byte, numBlocks)
	return &MemDisk{l: new(sync.Mutex), blocks: blocks}
}

// assumes caller holds d.l
func (d *MemDisk) check(a uint64) error {
	if d.closed {
		panic("mem disk is closed")
	}
	if a >= uint64(len(d.blocks)) {
		return fmt.Errorf("block %d of %d: %w", a, len(d.blocks), ErrOutOfRange)
	}
	return nil
}

func (d *MemDisk) ReadTo(a uint64, buf Block) error {
	checkBlock(buf)
	d.l.Lock()
	defer d.l.Unlock()
	if err := d.check(a); err != nil {
		return err
	}
	copy(buf, d.blocks[a][:])
	return nil
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *MemDisk) Write(a uint64, v Block) error {
	checkBlock(v)
	d.l.Lock()
	defer d.l.Unlock()
	if err := d.check(a); err != nil {
		return err
	}
	copy(d.blocks[a][:], v)
	return nil
}

func (d *MemDisk) WriteBatch(startPos uint64, blocks []Block) error {
	for i, buf := range blocks {
		err := d.Write(startPos+uint64(i), buf)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *MemDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error {
	d.l.Lock()
	defer d.l.Unlock()
	if d.closed {
		panic("mem disk is closed")
	}
	d.closed = true
	return nil
}
