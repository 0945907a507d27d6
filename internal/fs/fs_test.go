package fs_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treefuse/internal/blockcache"
	intfs "treefuse/internal/fs"
	"treefuse/internal/pathutil"
	"treefuse/internal/stats"
	"treefuse/internal/synth"
	"treefuse/internal/tree"
)

func buildIndex(t *testing.T, doc string) *tree.Index {
	t.Helper()
	l := tree.NewLoader(tree.Options{Form: pathutil.FormNone, Mtime: time.Unix(0, 0)})
	ix, err := l.Load([]byte(doc))
	require.NoError(t, err)
	return ix
}

func TestLookUpInodeAndGetAttr(t *testing.T) {
	ix := buildIndex(t, `[{"type":"directory","name":"test","size":0,"contents":[{"type":"file","name":"a","size":5}]}]`)
	s := synth.NewFill(0, 0)
	counters := &stats.Counters{}
	f := intfs.New(ix, s, nil, counters, nil)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "test"}
	require.NoError(t, f.LookUpInode(context.Background(), lookup))
	dirInode := lookup.Entry.Child
	assert.True(t, lookup.Entry.Attributes.Mode.IsDir())

	lookup2 := &fuseops.LookUpInodeOp{Parent: dirInode, Name: "a"}
	require.NoError(t, f.LookUpInode(context.Background(), lookup2))
	assert.EqualValues(t, 5, lookup2.Entry.Attributes.Size)

	getattr := &fuseops.GetInodeAttributesOp{Inode: lookup2.Entry.Child}
	require.NoError(t, f.GetInodeAttributes(context.Background(), getattr))
	assert.EqualValues(t, 5, getattr.Attributes.Size)

	assert.EqualValues(t, 2, counters.Snapshot().LookupOps)
	assert.EqualValues(t, 1, counters.Snapshot().GetattrOps)
}

func TestLookUpInode_NotFound(t *testing.T) {
	ix := buildIndex(t, `[]`)
	f := intfs.New(ix, synth.NewFill(0, 0), nil, nil, nil)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nope"}
	err := f.LookUpInode(context.Background(), op)
	assert.Equal(t, syscall.ENOENT, err)
}

func TestReadDir_ListsChildrenInOrder(t *testing.T) {
	ix := buildIndex(t, `[{"type":"file","name":"a","size":1},{"type":"file","name":"b","size":1}]`)
	f := intfs.New(ix, synth.NewFill(0, 0), nil, nil, nil)

	op := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 4096)}
	require.NoError(t, f.ReadDir(context.Background(), op))
	assert.Greater(t, op.BytesRead, 0)

	// Each dirent is a 24-byte header followed by its name padded to a
	// multiple of 8 bytes, so the two one-byte names sit at offsets 24 and 56.
	require.Equal(t, 64, op.BytesRead)
	assert.Equal(t, "a", string(op.Dst[24:25]))
	assert.Equal(t, "b", string(op.Dst[56:57]))
}

func TestReadFile_FillMode(t *testing.T) {
	ix := buildIndex(t, `[{"type":"file","name":"a","size":10}]`)
	f := intfs.New(ix, synth.NewFill(0x41, 0), nil, nil, nil)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "a"}
	require.NoError(t, f.LookUpInode(context.Background(), lookup))

	op := &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Offset: 0, Dst: make([]byte, 100)}
	require.NoError(t, f.ReadFile(context.Background(), op))
	assert.Equal(t, 10, op.BytesRead)
	for _, b := range op.Dst[:op.BytesRead] {
		assert.Equal(t, byte(0x41), b)
	}
}

func TestReadFile_PastEOF(t *testing.T) {
	ix := buildIndex(t, `[{"type":"file","name":"a","size":10}]`)
	f := intfs.New(ix, synth.NewFill(0x41, 0), nil, nil, nil)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "a"}
	require.NoError(t, f.LookUpInode(context.Background(), lookup))

	op := &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Offset: 20, Dst: make([]byte, 100)}
	require.NoError(t, f.ReadFile(context.Background(), op))
	assert.Equal(t, 0, op.BytesRead)
}

func TestMutatingOps_ReturnEROFS(t *testing.T) {
	ix := buildIndex(t, `[]`)
	counters := &stats.Counters{}
	f := intfs.New(ix, synth.NewFill(0, 0), nil, counters, nil)

	assert.Equal(t, syscall.EROFS, f.MkDir(context.Background(), &fuseops.MkDirOp{}))
	assert.Equal(t, syscall.EROFS, f.Unlink(context.Background(), &fuseops.UnlinkOp{}))
	assert.Equal(t, syscall.EROFS, f.RmDir(context.Background(), &fuseops.RmDirOp{}))
	assert.Equal(t, syscall.EROFS, f.SetInodeAttributes(context.Background(), &fuseops.SetInodeAttributesOp{}))
	assert.EqualValues(t, 4, counters.Snapshot().DeniedOps)
}

func TestStatFS_ReportsFixedGeometryAndNoFreeSpace(t *testing.T) {
	ix := buildIndex(t, `[{"type":"file","name":"a","size":1025}]`)
	f := intfs.New(ix, synth.NewFill(0, 0), nil, nil, nil)

	op := &fuseops.StatFSOp{}
	require.NoError(t, f.StatFS(context.Background(), op))
	assert.EqualValues(t, 512, op.BlockSize)
	// 1025 bytes round up to three 512-byte blocks.
	assert.EqualValues(t, 3, op.Blocks)
	assert.EqualValues(t, 0, op.BlocksFree)
	assert.EqualValues(t, 0, op.BlocksAvailable)
}

func TestReadSymlink_Fails(t *testing.T) {
	ix := buildIndex(t, `[]`)
	f := intfs.New(ix, synth.NewFill(0, 0), nil, nil, nil)
	err := f.ReadSymlink(context.Background(), &fuseops.ReadSymlinkOp{})
	assert.Equal(t, syscall.EROFS, err)
}

func TestLookUpInode_NormalizesRawKernelName(t *testing.T) {
	// "café" declared in NFC form; the tree is built with NFD normalization
	// (the default), so the index key is the decomposed form. A first-touch
	// lookup carrying the raw NFC bytes, as a user might type at a shell,
	// must still resolve.
	l := tree.NewLoader(tree.Options{Form: pathutil.FormNFD, Mtime: time.Unix(0, 0)})
	ix, err := l.Load([]byte(`[{"type":"file","name":"café","size":3}]`))
	require.NoError(t, err)
	f := intfs.New(ix, synth.NewFill(0, 0), nil, nil, nil)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "café"}
	require.NoError(t, f.LookUpInode(context.Background(), op))
	assert.EqualValues(t, 3, op.Entry.Attributes.Size)
}

func TestReadFile_SemiRandomViaFileSystem(t *testing.T) {
	ix := buildIndex(t, `[{"type":"file","name":"big","size":500000}]`)
	cache := blockcache.New(7, blockcache.DefaultBlockCount, blockcache.DefaultBlockSize)
	f := intfs.New(ix, synth.NewSemiRandom(cache), nil, nil, nil)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "big"}
	require.NoError(t, f.LookUpInode(context.Background(), lookup))

	op1 := &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Offset: 12345, Dst: make([]byte, 2048)}
	require.NoError(t, f.ReadFile(context.Background(), op1))

	op2 := &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Offset: 12345, Dst: make([]byte, 2048)}
	require.NoError(t, f.ReadFile(context.Background(), op2))

	assert.Equal(t, op1.Dst, op2.Dst)
}
