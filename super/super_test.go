package super

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-mkfs/common"
	"github.com/mit-pdos/go-mkfs/disk"
)

func TestBitmapBlocks(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(1), BitmapBlocks(8192))
	assert.Equal(uint64(2), BitmapBlocks(8500))
	assert.Equal(uint64(1), BitmapBlocks(1))
	assert.Equal(uint64(8), BitmapBlocks(common.MaxBlocks))
}

func TestInodeTableBlocks(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(64), InodeTableBlocks(2048))
	assert.Equal(uint64(65), InodeTableBlocks(2050))
	assert.Equal(uint64(64), InodeTableBlocks(2049), "odd totals truncate")
	assert.Equal(uint64(1), InodeTableBlocks(4))
}

func TestComputeLayout(t *testing.T) {
	assert := assert.New(t)
	for _, n := range []uint64{4, 100, 2048, 2049, 2050, 8192, 8193, 8500, common.MaxBlocks} {
		l := ComputeLayout(n)
		assert.Equal(common.Bnum(1), l.FirstBitmapBlock, "n=%d", n)
		assert.Equal(l.FirstBitmapBlock+BitmapBlocks(n)-1, l.LastBitmapBlock, "n=%d", n)
		assert.Equal(l.LastBitmapBlock+1, l.FirstInodeBlock, "n=%d", n)
		assert.Equal(l.FirstInodeBlock+InodeTableBlocks(n)-1, l.LastInodeBlock, "n=%d", n)
		assert.Equal(l.LastInodeBlock+1, l.FirstDataBlock, "n=%d", n)
		assert.Equal(n-1, l.LastDataBlock, "n=%d", n)
	}

	l := ComputeLayout(8192)
	assert.Equal(Layout{
		FirstBitmapBlock: 1,
		LastBitmapBlock:  1,
		FirstInodeBlock:  2,
		LastInodeBlock:   257,
		FirstDataBlock:   258,
		LastDataBlock:    8191,
	}, l)
}

func TestCheckTotal(t *testing.T) {
	assert := assert.New(t)
	assert.True(errors.Is(CheckTotal(0), ErrTooSmall))
	assert.True(errors.Is(CheckTotal(1), ErrTooSmall))
	assert.True(errors.Is(CheckTotal(3), ErrTooSmall), "no room for a data block")
	assert.NoError(CheckTotal(4))
	assert.NoError(CheckTotal(common.MaxBlocks))
	assert.True(errors.Is(CheckTotal(common.MaxBlocks+1), ErrTooLarge))
}

func TestMkSuperblock(t *testing.T) {
	assert := assert.New(t)
	sb := MkSuperblock(8192)
	assert.Equal(uint64(8192-1-1-256), sb.FreeBlocks)
	assert.Equal(uint64(4096), sb.TotalInodes)
	assert.Equal(sb.TotalInodes, sb.FreeInodes)
	assert.Equal(common.ROOTINUM, sb.RootDirInode)
	assert.Equal(common.Inum(1), sb.FirstFreeInode)
	assert.Equal(sb.NDataBlocks(), sb.FreeBlocks)
	assert.NoError(sb.Validate())

	sb = MkSuperblock(8193)
	assert.Equal(uint64(4096), sb.TotalInodes, "odd total loses the remainder")
	assert.NoError(sb.Validate())
}

func TestEncodeLayout(t *testing.T) {
	assert := assert.New(t)
	sb := MkSuperblock(2050)
	blk := sb.Encode()
	assert.Equal(int(disk.BlockSize), len(blk))

	fields := []uint64{
		sb.FirstBitmapBlock, sb.LastBitmapBlock,
		sb.FirstInodeBlock, sb.LastInodeBlock,
		sb.FirstDataBlock, sb.LastDataBlock,
		uint64(sb.RootDirInode), uint64(sb.FirstFreeInode),
		sb.FreeBlocks, sb.FreeInodes,
		sb.TotalBlocks, sb.TotalInodes,
		Magic, Version,
	}
	for i, f := range fields {
		assert.Equal(f, binary.LittleEndian.Uint64(blk[i*8:i*8+8]), "field %d", i)
	}
	for i := len(fields) * 8; i < len(blk); i++ {
		if !assert.Equal(byte(0), blk[i], "padding byte %d", i) {
			break
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	sb := MkSuperblock(8500)
	sb.FreeBlocks -= 3
	sb.FreeInodes -= 2
	sb2, err := Decode(sb.Encode())
	require.NoError(t, err)
	assert.Equal(t, sb, sb2)
}

func TestInitRead(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(8192)

	sb, err := Init(d, 8192)
	require.NoError(t, err)
	sb2, err := Read(d)
	require.NoError(t, err)
	assert.Equal(sb, sb2)

	sb2.FreeBlocks = 10
	assert.NoError(Write(d, sb2))
	sb3, err := Read(d)
	assert.NoError(err)
	assert.Equal(uint64(10), sb3.FreeBlocks)
}

func TestInitRejectsSize(t *testing.T) {
	d := disk.NewMemDisk(4)
	_, err := Init(d, 2)
	assert.True(t, errors.Is(err, ErrTooSmall))
	_, err = Init(d, common.MaxBlocks*2)
	assert.True(t, errors.Is(err, ErrTooLarge))

	b, _ := d.Read(0)
	assert.Equal(t, make(disk.Block, disk.BlockSize), b, "nothing written")
}

func TestReadZeroed(t *testing.T) {
	d := disk.NewMemDisk(16)
	_, err := Read(d)
	assert.True(t, errors.Is(err, ErrLayoutInconsistent))
}

func TestReadIOError(t *testing.T) {
	d := disk.NewMemDisk(0)
	_, err := Read(d)
	assert.True(t, errors.Is(err, disk.ErrOutOfRange))
	assert.False(t, errors.Is(err, ErrLayoutInconsistent))
}

func TestValidate(t *testing.T) {
	type mutation struct {
		name string
		f    func(sb *Superblock)
	}
	mutations := []mutation{
		{"bitmap start", func(sb *Superblock) { sb.FirstBitmapBlock = 0 }},
		{"gap after bitmap", func(sb *Superblock) { sb.FirstInodeBlock++ }},
		{"overlap", func(sb *Superblock) { sb.FirstDataBlock = sb.LastInodeBlock }},
		{"short inode table", func(sb *Superblock) {
			sb.LastInodeBlock--
			sb.FirstDataBlock--
		}},
		{"last data", func(sb *Superblock) { sb.LastDataBlock-- }},
		{"inode count", func(sb *Superblock) { sb.TotalInodes++ }},
		{"free blocks", func(sb *Superblock) { sb.FreeBlocks = sb.TotalBlocks }},
		{"free inodes", func(sb *Superblock) { sb.FreeInodes = sb.TotalInodes + 1 }},
		{"root inode", func(sb *Superblock) { sb.RootDirInode = common.Inum(sb.TotalInodes) }},
		{"total", func(sb *Superblock) { sb.TotalBlocks = 2 }},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			sb := MkSuperblock(8192)
			m.f(sb)
			err := sb.Validate()
			assert.True(t, errors.Is(err, ErrLayoutInconsistent), "got %v", err)
		})
	}
}

func TestDecodeBadMagic(t *testing.T) {
	blk := MkSuperblock(100).Encode()
	blk[12*8] ^= 0xff
	_, err := Decode(blk)
	assert.True(t, errors.Is(err, ErrLayoutInconsistent))

	blk = MkSuperblock(100).Encode()
	blk[13*8] = 2
	_, err = Decode(blk)
	assert.True(t, errors.Is(err, ErrLayoutInconsistent))

	_, err = Decode(blk[:10])
	assert.True(t, errors.Is(err, ErrLayoutInconsistent))
}

func TestCounters(t *testing.T) {
	assert := assert.New(t)
	sb := MkSuperblock(4)
	assert.Equal(uint64(1), sb.FreeBlocks)
	assert.Equal(uint64(2), sb.FreeInodes)

	assert.True(errors.Is(sb.IncFreeBlocks(), ErrInvariantViolation))
	assert.NoError(sb.DecFreeBlocks())
	assert.Equal(uint64(0), sb.FreeBlocks)
	assert.True(errors.Is(sb.DecFreeBlocks(), ErrInvariantViolation))
	assert.Equal(uint64(0), sb.FreeBlocks, "failed decrement must not wrap")
	assert.NoError(sb.IncFreeBlocks())

	assert.True(errors.Is(sb.IncFreeInodes(), ErrInvariantViolation))
	assert.NoError(sb.DecFreeInodes())
	assert.NoError(sb.DecFreeInodes())
	assert.True(errors.Is(sb.DecFreeInodes(), ErrInvariantViolation))
	assert.Equal(uint64(0), sb.FreeInodes)
}
