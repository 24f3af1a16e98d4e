// Package super computes the on-disk layout of an image and persists it in
// block 0.
//
// The image is laid out as
//
//	[ superblock | bitmap | inode table | data ]
//	  0            1        ...          FirstDataBlock .. TotalBlocks-1
//
// The bitmap has one bit per device block, metadata blocks included. The
// inode table holds TotalBlocks/2 records of common.INODESZ bytes.
package super

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-mkfs/common"
	"github.com/mit-pdos/go-mkfs/disk"
	"github.com/mit-pdos/go-mkfs/util"
)

const (
	Magic   uint64 = 0x6d6b6673 // "mkfs"
	Version uint64 = 1

	// 12 layout fields, then Magic and Version
	nfields uint64 = 14
)

var (
	ErrLayoutInconsistent = errors.New("superblock: layout inconsistent")
	ErrInvariantViolation = errors.New("superblock: counter invariant violated")
	ErrTooSmall           = errors.New("superblock: too few blocks for a layout")
	ErrTooLarge           = errors.New("superblock: too many blocks for 16-bit block pointers")
)

// Superblock is the in-memory copy of block 0. Fields are stored in
// declaration order, 8 bytes each.
type Superblock struct {
	FirstBitmapBlock common.Bnum
	LastBitmapBlock  common.Bnum
	FirstInodeBlock  common.Bnum
	LastInodeBlock   common.Bnum
	FirstDataBlock   common.Bnum
	LastDataBlock    common.Bnum
	RootDirInode     common.Inum
	FirstFreeInode   common.Inum
	FreeBlocks       uint64
	FreeInodes       uint64
	TotalBlocks      uint64
	TotalInodes      uint64
}

// Layout holds the region boundaries for an image; all bounds are inclusive.
type Layout struct {
	FirstBitmapBlock common.Bnum
	LastBitmapBlock  common.Bnum
	FirstInodeBlock  common.Bnum
	LastInodeBlock   common.Bnum
	FirstDataBlock   common.Bnum
	LastDataBlock    common.Bnum
}

// BitmapBlocks is the number of blocks the bitmap of an n-block device takes.
func BitmapBlocks(n uint64) uint64 {
	return util.RoundUp(n, common.NBITBLOCK)
}

// NumInodes is the number of inodes of an n-block image. An odd n loses its
// last half block of inodes.
func NumInodes(n uint64) uint64 {
	return n / 2
}

// InodeTableBlocks is the number of blocks holding NumInodes(n) records.
func InodeTableBlocks(n uint64) uint64 {
	return util.RoundUp(NumInodes(n)*common.INODESZ, disk.BlockSize)
}

// ComputeLayout lays the regions of an n-block image out in order, starting
// right after the superblock.
func ComputeLayout(n uint64) Layout {
	nbitmap := BitmapBlocks(n)
	ninode := InodeTableBlocks(n)
	return Layout{
		FirstBitmapBlock: common.SUPERBLK + 1,
		LastBitmapBlock:  nbitmap,
		FirstInodeBlock:  nbitmap + 1,
		LastInodeBlock:   nbitmap + ninode,
		FirstDataBlock:   nbitmap + ninode + 1,
		LastDataBlock:    n - 1,
	}
}

// CheckTotal reports whether an n-block image has room for at least one
// inode and one data block, and whether every block is addressable by an
// inode pointer.
func CheckTotal(n uint64) error {
	if n > common.MaxBlocks {
		return fmt.Errorf("%d blocks, max %d: %w", n, common.MaxBlocks, ErrTooLarge)
	}
	if NumInodes(n) == 0 || ComputeLayout(n).FirstDataBlock >= n {
		return fmt.Errorf("%d blocks: %w", n, ErrTooSmall)
	}
	return nil
}

// MkSuperblock builds the record for a freshly formatted n-block image.
// Metadata blocks are not counted as free.
func MkSuperblock(n uint64) *Superblock {
	l := ComputeLayout(n)
	return &Superblock{
		FirstBitmapBlock: l.FirstBitmapBlock,
		LastBitmapBlock:  l.LastBitmapBlock,
		FirstInodeBlock:  l.FirstInodeBlock,
		LastInodeBlock:   l.LastInodeBlock,
		FirstDataBlock:   l.FirstDataBlock,
		LastDataBlock:    l.LastDataBlock,
		RootDirInode:     common.ROOTINUM,
		FirstFreeInode:   common.FIRSTFREE,
		FreeBlocks:       n - 1 - BitmapBlocks(n) - InodeTableBlocks(n),
		FreeInodes:       NumInodes(n),
		TotalBlocks:      n,
		TotalInodes:      NumInodes(n),
	}
}

// Init writes the superblock of a fresh n-block image to block 0 of d.
func Init(d disk.Disk, n uint64) (*Superblock, error) {
	err := CheckTotal(n)
	if err != nil {
		return nil, err
	}
	sb := MkSuperblock(n)
	util.DPrintf(3, "super.Init: %v\n", sb)
	err = Write(d, sb)
	if err != nil {
		return nil, err
	}
	return sb, nil
}

// Read loads block 0 of d and checks that it describes a consistent layout.
func Read(d disk.Disk) (*Superblock, error) {
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}
	sb, err := Decode(blk)
	if err != nil {
		return nil, err
	}
	err = sb.Validate()
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func Write(d disk.Disk, sb *Superblock) error {
	err := d.Write(common.SUPERBLK, sb.Encode())
	if err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	return nil
}

// Encode packs sb into a block: the 12 fields in declaration order, Magic,
// Version, and zero padding.
func (sb *Superblock) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(sb.FirstBitmapBlock)
	enc.PutInt(sb.LastBitmapBlock)
	enc.PutInt(sb.FirstInodeBlock)
	enc.PutInt(sb.LastInodeBlock)
	enc.PutInt(sb.FirstDataBlock)
	enc.PutInt(sb.LastDataBlock)
	enc.PutInt(uint64(sb.RootDirInode))
	enc.PutInt(uint64(sb.FirstFreeInode))
	enc.PutInt(sb.FreeBlocks)
	enc.PutInt(sb.FreeInodes)
	enc.PutInt(sb.TotalBlocks)
	enc.PutInt(sb.TotalInodes)
	enc.PutInt(Magic)
	enc.PutInt(Version)
	return enc.Finish()
}

// Decode unpacks a block written by Encode. It checks the magic number and
// version but not the layout; see Validate.
func Decode(blk disk.Block) (*Superblock, error) {
	if uint64(len(blk)) < nfields*8 {
		return nil, fmt.Errorf("%d-byte superblock: %w", len(blk), ErrLayoutInconsistent)
	}
	dec := marshal.NewDec(blk)
	sb := &Superblock{}
	sb.FirstBitmapBlock = dec.GetInt()
	sb.LastBitmapBlock = dec.GetInt()
	sb.FirstInodeBlock = dec.GetInt()
	sb.LastInodeBlock = dec.GetInt()
	sb.FirstDataBlock = dec.GetInt()
	sb.LastDataBlock = dec.GetInt()
	sb.RootDirInode = common.Inum(dec.GetInt())
	sb.FirstFreeInode = common.Inum(dec.GetInt())
	sb.FreeBlocks = dec.GetInt()
	sb.FreeInodes = dec.GetInt()
	sb.TotalBlocks = dec.GetInt()
	sb.TotalInodes = dec.GetInt()
	magic := dec.GetInt()
	version := dec.GetInt()
	if magic != Magic {
		return nil, fmt.Errorf("bad magic %#x: %w", magic, ErrLayoutInconsistent)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported version %d: %w", version, ErrLayoutInconsistent)
	}
	return sb, nil
}

func inconsistent(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), ErrLayoutInconsistent)
}

// Validate checks that sb describes the layout ComputeLayout gives for
// sb.TotalBlocks and that its counters are in range.
func (sb *Superblock) Validate() error {
	n := sb.TotalBlocks
	if err := CheckTotal(n); err != nil {
		return inconsistent("total blocks %d (%v)", n, err)
	}
	if sb.TotalInodes != NumInodes(n) {
		return inconsistent("%d inodes for %d blocks", sb.TotalInodes, n)
	}
	if sb.FirstBitmapBlock != common.SUPERBLK+1 {
		return inconsistent("bitmap starts at %d", sb.FirstBitmapBlock)
	}
	if sb.LastBitmapBlock < sb.FirstBitmapBlock ||
		sb.LastBitmapBlock+1 != sb.FirstInodeBlock ||
		sb.LastInodeBlock < sb.FirstInodeBlock ||
		sb.LastInodeBlock+1 != sb.FirstDataBlock ||
		sb.LastDataBlock < sb.FirstDataBlock ||
		sb.LastDataBlock != n-1 {
		return inconsistent("regions not contiguous: %v", sb.Layout())
	}
	if sb.Layout() != ComputeLayout(n) {
		return inconsistent("regions %v, want %v", sb.Layout(), ComputeLayout(n))
	}
	if sb.FreeBlocks > sb.NDataBlocks() {
		return inconsistent("%d free blocks of %d", sb.FreeBlocks, sb.NDataBlocks())
	}
	if sb.FreeInodes > sb.TotalInodes {
		return inconsistent("%d free inodes of %d", sb.FreeInodes, sb.TotalInodes)
	}
	if uint64(sb.RootDirInode) >= sb.TotalInodes {
		return inconsistent("root inode %d of %d", sb.RootDirInode, sb.TotalInodes)
	}
	return nil
}

func (sb *Superblock) Layout() Layout {
	return Layout{
		FirstBitmapBlock: sb.FirstBitmapBlock,
		LastBitmapBlock:  sb.LastBitmapBlock,
		FirstInodeBlock:  sb.FirstInodeBlock,
		LastInodeBlock:   sb.LastInodeBlock,
		FirstDataBlock:   sb.FirstDataBlock,
		LastDataBlock:    sb.LastDataBlock,
	}
}

func (sb *Superblock) NBitmap() uint64 {
	return sb.LastBitmapBlock - sb.FirstBitmapBlock + 1
}

func (sb *Superblock) NInodeBlocks() uint64 {
	return sb.LastInodeBlock - sb.FirstInodeBlock + 1
}

func (sb *Superblock) NDataBlocks() uint64 {
	return sb.LastDataBlock - sb.FirstDataBlock + 1
}

func (sb *Superblock) DecFreeBlocks() error {
	if sb.FreeBlocks == 0 {
		return fmt.Errorf("free blocks underflow: %w", ErrInvariantViolation)
	}
	sb.FreeBlocks--
	return nil
}

func (sb *Superblock) IncFreeBlocks() error {
	if sb.FreeBlocks >= sb.NDataBlocks() {
		return fmt.Errorf("free blocks past %d: %w", sb.NDataBlocks(), ErrInvariantViolation)
	}
	sb.FreeBlocks++
	return nil
}

func (sb *Superblock) DecFreeInodes() error {
	if sb.FreeInodes == 0 {
		return fmt.Errorf("free inodes underflow: %w", ErrInvariantViolation)
	}
	sb.FreeInodes--
	return nil
}

func (sb *Superblock) IncFreeInodes() error {
	if sb.FreeInodes >= sb.TotalInodes {
		return fmt.Errorf("free inodes past %d: %w", sb.TotalInodes, ErrInvariantViolation)
	}
	sb.FreeInodes++
	return nil
}
