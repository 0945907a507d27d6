package blockcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"treefuse/internal/blockcache"
)

func TestNew_ExactShape(t *testing.T) {
	c := blockcache.New(4, 10, 16)
	assert.Equal(t, 10, c.BlockCount())
	assert.Equal(t, 16, c.BlockSize())
	for i := 0; i < c.BlockCount(); i++ {
		assert.Len(t, c.Block(uint64(i)), 16)
	}
}

func TestNew_Deterministic(t *testing.T) {
	a := blockcache.New(4, blockcache.DefaultBlockCount, blockcache.DefaultBlockSize)
	b := blockcache.New(4, blockcache.DefaultBlockCount, blockcache.DefaultBlockSize)

	for i := 0; i < a.BlockCount(); i++ {
		assert.Equal(t, a.Block(uint64(i)), b.Block(uint64(i)))
	}
}

func TestNew_DistinctSeedsDistinctBlocks(t *testing.T) {
	a := blockcache.New(1, 4, 64)
	b := blockcache.New(2, 4, 64)
	assert.NotEqual(t, a.Block(0), b.Block(0))
}

func TestNew_BlocksWithinCacheDiffer(t *testing.T) {
	c := blockcache.New(4, 4, 64)
	assert.NotEqual(t, c.Block(0), c.Block(1))
}
