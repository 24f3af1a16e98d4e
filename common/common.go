package common

import (
	"github.com/mit-pdos/go-mkfs/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8
	INODEBLK  uint64 = disk.BlockSize / INODESZ

	INODESZ uint64 = 64 // on-disk size

	// Block pointers in an inode are 16 bits wide.
	MaxBlocks uint64 = 1 << 16

	SUPERBLK Bnum = 0
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM  Inum = 0
	FIRSTFREE Inum = 1
	NULLBNUM  Bnum = 0
)
