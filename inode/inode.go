// Package inode stores fixed-size inode records in the inode table, which
// starts at the superblock's FirstInodeBlock and packs common.INODEBLK records
// into each block.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/mit-pdos/go-mkfs/addr"
	"github.com/mit-pdos/go-mkfs/common"
	"github.com/mit-pdos/go-mkfs/disk"
	"github.com/mit-pdos/go-mkfs/super"
	"github.com/mit-pdos/go-mkfs/util"
)

const (
	NDIRECT   = 12
	NINDIRECT = 3

	// indexes into Inode.Indirect
	SINGLE = 0
	DOUBLE = 1
	TRIPLE = 2
)

const (
	TypeFile uint8 = 1
	TypeDir  uint8 = 2
)

// DefaultPerm is the permission byte of a freshly formatted inode.
const DefaultPerm uint8 = 7

// byte offsets within an encoded record
const (
	offType     = 0
	offPerm     = 1
	offAtime    = 2
	offMtime    = 4
	offCtime    = 6
	offNLink    = 8
	offSize     = 10
	offNBlocks  = 12
	offDirect   = 14
	offIndirect = offDirect + 2*NDIRECT
	recordEnd   = offIndirect + 2*NINDIRECT // rest is padding
)

type Inode struct {
	Type     uint8
	Perm     uint8
	Atime    uint16 // access time
	Mtime    uint16 // data modification time
	Ctime    uint16 // inode modification time
	NLink    uint16
	Size     uint16 // in bytes
	NBlocks  uint16 // occupied data blocks
	Direct   [NDIRECT]uint16
	Indirect [NINDIRECT]uint16
}

// MkEmpty returns the record every slot holds after formatting.
func MkEmpty() *Inode {
	return &Inode{Type: TypeFile, Perm: DefaultPerm}
}

// Encode packs ip into INODESZ bytes, little-endian, zero padded.
func (ip *Inode) Encode() []byte {
	data := make([]byte, common.INODESZ)
	data[offType] = ip.Type
	data[offPerm] = ip.Perm
	binary.LittleEndian.PutUint16(data[offAtime:], ip.Atime)
	binary.LittleEndian.PutUint16(data[offMtime:], ip.Mtime)
	binary.LittleEndian.PutUint16(data[offCtime:], ip.Ctime)
	binary.LittleEndian.PutUint16(data[offNLink:], ip.NLink)
	binary.LittleEndian.PutUint16(data[offSize:], ip.Size)
	binary.LittleEndian.PutUint16(data[offNBlocks:], ip.NBlocks)
	for i, bn := range ip.Direct {
		binary.LittleEndian.PutUint16(data[offDirect+2*i:], bn)
	}
	for i, bn := range ip.Indirect {
		binary.LittleEndian.PutUint16(data[offIndirect+2*i:], bn)
	}
	return data
}

func Decode(data []byte) *Inode {
	if uint64(len(data)) < common.INODESZ {
		panic(fmt.Errorf("inode record is %d bytes", len(data)))
	}
	ip := &Inode{}
	ip.Type = data[offType]
	ip.Perm = data[offPerm]
	ip.Atime = binary.LittleEndian.Uint16(data[offAtime:])
	ip.Mtime = binary.LittleEndian.Uint16(data[offMtime:])
	ip.Ctime = binary.LittleEndian.Uint16(data[offCtime:])
	ip.NLink = binary.LittleEndian.Uint16(data[offNLink:])
	ip.Size = binary.LittleEndian.Uint16(data[offSize:])
	ip.NBlocks = binary.LittleEndian.Uint16(data[offNBlocks:])
	for i := range ip.Direct {
		ip.Direct[i] = binary.LittleEndian.Uint16(data[offDirect+2*i:])
	}
	for i := range ip.Indirect {
		ip.Indirect[i] = binary.LittleEndian.Uint16(data[offIndirect+2*i:])
	}
	return ip
}

// SlotAddr locates the record of inode inum.
func SlotAddr(sb *super.Superblock, inum common.Inum) addr.Addr {
	if uint64(inum) >= sb.TotalInodes {
		panic(fmt.Errorf("inode %d past table of %d", inum, sb.TotalInodes))
	}
	return addr.MkInodeAddr(sb.FirstInodeBlock, inum)
}

// WriteRecord stores ip in slot inum, rewriting the block that holds it.
func WriteRecord(d disk.Disk, sb *super.Superblock, ip *Inode, inum common.Inum) error {
	a := SlotAddr(sb, inum)
	blk, err := d.Read(a.Blkno)
	if err != nil {
		return fmt.Errorf("read inode block %d: %w", a.Blkno, err)
	}
	copy(blk[a.ByteOff():a.ByteOff()+common.INODESZ], ip.Encode())
	err = d.Write(a.Blkno, blk)
	if err != nil {
		return fmt.Errorf("write inode block %d: %w", a.Blkno, err)
	}
	return nil
}

func ReadRecord(d disk.Disk, sb *super.Superblock, inum common.Inum) (*Inode, error) {
	a := SlotAddr(sb, inum)
	blk, err := d.Read(a.Blkno)
	if err != nil {
		return nil, fmt.Errorf("read inode block %d: %w", a.Blkno, err)
	}
	return Decode(blk[a.ByteOff() : a.ByteOff()+common.INODESZ]), nil
}

// Init fills every slot of the table with an empty record. Each table block
// is written once; slots past TotalInodes in the last block are zero.
func Init(d disk.Disk) error {
	if disk.BlockSize%common.INODESZ != 0 {
		panic("block size is not a multiple of the inode size")
	}
	sb, err := super.Read(d)
	if err != nil {
		return err
	}

	empty := MkEmpty().Encode()
	blks := make([]disk.Block, 0, sb.NInodeBlocks())
	var inum uint64
	for i := uint64(0); i < sb.NInodeBlocks(); i++ {
		blk := make(disk.Block, disk.BlockSize)
		for slot := uint64(0); slot < common.INODEBLK && inum < sb.TotalInodes; slot++ {
			copy(blk[slot*common.INODESZ:], empty)
			inum++
		}
		blks = append(blks, blk)
	}

	if wb, ok := d.(disk.DiskWriteBatch); ok {
		err = wb.WriteBatch(sb.FirstInodeBlock, blks)
		if err != nil {
			return fmt.Errorf("write inode table: %w", err)
		}
	} else {
		for i, blk := range blks {
			bn := sb.FirstInodeBlock + uint64(i)
			err = d.Write(bn, blk)
			if err != nil {
				return fmt.Errorf("write inode block %d: %w", bn, err)
			}
		}
	}
	util.DPrintf(3, "inode.Init: %d records in %d blocks\n", inum, len(blks))
	return nil
}
