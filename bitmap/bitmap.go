// Package bitmap tracks block allocation with one bit per device block,
// stored from the superblock's FirstBitmapBlock on. Bit 0 of the bitmap is
// the most significant bit of its first byte; 1 means used.
//
// Every single-bit update is one block read, one byte change and one block
// write. Nothing is batched across calls.
package bitmap

import (
	"fmt"

	"github.com/mit-pdos/go-mkfs/addr"
	"github.com/mit-pdos/go-mkfs/common"
	"github.com/mit-pdos/go-mkfs/disk"
	"github.com/mit-pdos/go-mkfs/super"
	"github.com/mit-pdos/go-mkfs/util"
)

// Size is the number of blocks the bitmap of an n-block device takes.
func Size(n uint64) uint64 {
	return super.BitmapBlocks(n)
}

// SetBit sets (value 1) or clears (value 0) the bit for block pos in blk,
// the bitmap block that holds it.
func SetBit(value uint8, pos uint64, blk disk.Block) {
	a := addr.MkBitAddr(0, pos)
	switch value {
	case 1:
		blk[a.ByteOff()] |= a.Mask()
	case 0:
		blk[a.ByteOff()] &^= a.Mask()
	default:
		panic(fmt.Errorf("invalid bit value %d", value))
	}
}

// GetBit returns the bit for block pos in blk.
func GetBit(pos uint64, blk disk.Block) uint8 {
	a := addr.MkBitAddr(0, pos)
	if blk[a.ByteOff()]&a.Mask() != 0 {
		return 1
	}
	return 0
}

// BitAddr locates the bit for block pos.
func BitAddr(sb *super.Superblock, pos uint64) addr.Addr {
	if pos >= sb.TotalBlocks {
		panic(fmt.Errorf("bit %d past %d-block device", pos, sb.TotalBlocks))
	}
	return addr.MkBitAddr(sb.FirstBitmapBlock, pos)
}

// WriteBit stores value as the bit for block pos.
func WriteBit(d disk.Disk, sb *super.Superblock, value uint8, pos uint64) error {
	a := BitAddr(sb, pos)
	blk, err := d.Read(a.Blkno)
	if err != nil {
		return fmt.Errorf("read bitmap block %d: %w", a.Blkno, err)
	}
	SetBit(value, pos, blk)
	util.DPrintf(10, "WriteBit: %d=%d in %v byte 0x%x\n", pos, value, a, blk[a.ByteOff()])
	err = d.Write(a.Blkno, blk)
	if err != nil {
		return fmt.Errorf("write bitmap block %d: %w", a.Blkno, err)
	}
	return nil
}

// ReadBit loads the bit for block pos.
func ReadBit(d disk.Disk, sb *super.Superblock, pos uint64) (uint8, error) {
	a := BitAddr(sb, pos)
	blk, err := d.Read(a.Blkno)
	if err != nil {
		return 0, fmt.Errorf("read bitmap block %d: %w", a.Blkno, err)
	}
	return GetBit(pos, blk), nil
}

// Init zeroes the bitmap and marks every metadata block used, keeping the
// superblock's free-block count equal to the number of clear bits. It
// persists and returns the updated superblock.
func Init(d disk.Disk) (*super.Superblock, error) {
	sb, err := super.Read(d)
	if err != nil {
		return nil, err
	}

	zero := make(disk.Block, disk.BlockSize)
	for bn := sb.FirstBitmapBlock; bn <= sb.LastBitmapBlock; bn++ {
		err = d.Write(bn, zero)
		if err != nil {
			return nil, fmt.Errorf("zero bitmap block %d: %w", bn, err)
		}
	}
	util.DPrintf(3, "bitmap.Init: zeroed %d blocks\n", sb.NBitmap())

	// a zero bitmap has every block free
	sb.FreeBlocks = sb.TotalBlocks
	for bn := common.Bnum(0); bn < sb.FirstDataBlock; bn++ {
		err = WriteBit(d, sb, 1, bn)
		if err != nil {
			return nil, err
		}
		err = sb.DecFreeBlocks()
		if err != nil {
			return nil, err
		}
	}
	util.DPrintf(3, "bitmap.Init: marked %d metadata blocks, %d free\n",
		sb.FirstDataBlock, sb.FreeBlocks)

	err = super.Write(d, sb)
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the clear bits for blocks [0, sb.TotalBlocks).
func NumFree(d disk.Disk, sb *super.Superblock) (uint64, error) {
	var used uint64
	for i := uint64(0); i < sb.NBitmap(); i++ {
		bn := sb.FirstBitmapBlock + i
		blk, err := d.Read(bn)
		if err != nil {
			return 0, fmt.Errorf("read bitmap block %d: %w", bn, err)
		}
		start := i * common.NBITBLOCK
		nbits := util.Min(common.NBITBLOCK, sb.TotalBlocks-start)
		full := nbits / 8
		for _, b := range blk[:full] {
			used += popCnt(b)
		}
		for bit := full * 8; bit < nbits; bit++ {
			used += uint64(GetBit(bit, blk))
		}
	}
	return sb.TotalBlocks - used, nil
}
