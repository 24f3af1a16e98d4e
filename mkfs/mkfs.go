// Package mkfs formats a block device into a fresh image.
//
// A format runs these steps in order, each writing straight to the device:
// zero the data region, write the superblock, build the bitmap, write the
// inode table. There is no journal; a failure part way leaves a partially
// formatted image, and formatting again starts from scratch.
package mkfs

import (
	"fmt"

	"github.com/mit-pdos/go-mkfs/bitmap"
	"github.com/mit-pdos/go-mkfs/common"
	"github.com/mit-pdos/go-mkfs/disk"
	"github.com/mit-pdos/go-mkfs/inode"
	"github.com/mit-pdos/go-mkfs/super"
	"github.com/mit-pdos/go-mkfs/util"
)

// data blocks zeroed per batched write
const zeroBatch uint64 = 64

// Format lays out an n-block image on d, overwriting whatever d held. n is
// taken as given; it is not checked against d.Size().
func Format(d disk.Disk, n uint64) (*super.Superblock, error) {
	err := super.CheckTotal(n)
	if err != nil {
		return nil, err
	}
	l := super.ComputeLayout(n)
	util.DPrintf(1, "Format: %d blocks, layout %+v\n", n, l)

	err = zeroData(d, l)
	if err != nil {
		return nil, err
	}
	_, err = super.Init(d, n)
	if err != nil {
		return nil, err
	}
	sb, err := bitmap.Init(d)
	if err != nil {
		return nil, err
	}
	err = inode.Init(d)
	if err != nil {
		return nil, err
	}
	util.DPrintf(1, "Format: done, %d free blocks %d free inodes\n",
		sb.FreeBlocks, sb.FreeInodes)
	return sb, nil
}

// zeroData clears the data region. The metadata regions are zeroed by the
// step that owns them.
func zeroData(d disk.Disk, l super.Layout) error {
	zero := make(disk.Block, disk.BlockSize)
	wb, batch := d.(disk.DiskWriteBatch)
	var bn = l.FirstDataBlock
	for bn <= l.LastDataBlock {
		if !batch {
			err := d.Write(bn, zero)
			if err != nil {
				return fmt.Errorf("zero data block %d: %w", bn, err)
			}
			bn++
			continue
		}
		cnt := util.Min(zeroBatch, l.LastDataBlock-bn+1)
		blks := make([]disk.Block, cnt)
		for i := range blks {
			blks[i] = zero
		}
		err := wb.WriteBatch(bn, blks)
		if err != nil {
			return fmt.Errorf("zero data blocks [%d, %d): %w", bn, bn+cnt, err)
		}
		bn += cnt
	}
	util.DPrintf(3, "zeroData: %d blocks\n", l.LastDataBlock-l.FirstDataBlock+1)
	return nil
}

// FormatFile formats the image file at path, creating it if needed. The file
// is closed on return, and synced first if the format succeeded.
func FormatFile(path string, n uint64) (sb *super.Superblock, err error) {
	util.DPrintf(1, "FormatFile: %s\n", path)
	d, err := disk.Mount(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		cerr := d.Close()
		if err == nil && cerr != nil {
			sb, err = nil, cerr
		}
	}()

	sb, err = Format(d, n)
	if err != nil {
		return nil, err
	}
	err = d.Barrier()
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func inconsistent(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), super.ErrLayoutInconsistent)
}

// Verify checks a formatted image: the superblock must be valid, every
// metadata block marked used, the free-block count must match the bitmap,
// and the root inode must hold a known type.
func Verify(d disk.Disk) (*super.Superblock, error) {
	sb, err := super.Read(d)
	if err != nil {
		return nil, err
	}
	for bn := common.Bnum(0); bn < sb.FirstDataBlock; bn++ {
		v, err := bitmap.ReadBit(d, sb, bn)
		if err != nil {
			return nil, err
		}
		if v != 1 {
			return nil, inconsistent("metadata block %d marked free", bn)
		}
	}
	free, err := bitmap.NumFree(d, sb)
	if err != nil {
		return nil, err
	}
	if free != sb.FreeBlocks {
		return nil, inconsistent("bitmap has %d free blocks, superblock %d", free, sb.FreeBlocks)
	}
	root, err := inode.ReadRecord(d, sb, sb.RootDirInode)
	if err != nil {
		return nil, err
	}
	if root.Type != inode.TypeFile && root.Type != inode.TypeDir {
		return nil, inconsistent("root inode %d has type %d", sb.RootDirInode, root.Type)
	}
	return sb, nil
}
