// Package fs implements the FUSE callback surface that serves a mounted
// tree.Index as a read-only filesystem. It follows the jacobsa/fuse
// calling convention: one method per op, taking a context.Context and a
// *fuseops.XOp, returning an error; the zero value means success.
package fs

import (
	"context"
	"os"
	"strings"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"

	"treefuse/internal/logger"
	"treefuse/internal/ratelimit"
	"treefuse/internal/stats"
	"treefuse/internal/synth"
	"treefuse/internal/tree"
)

// FileSystem serves a tree.Index read-only. Embedding
// fuseutil.NotImplementedFileSystem means any op this type doesn't
// override is answered with ENOSYS, which covers the long tail of ops
// newer kernels added (Fallocate, MkNode, and friends) that a synthetic
// read-only tree has no meaningful answer for.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	index    *tree.Index
	synth    *synth.Synthesizer
	limiter  *ratelimit.Limiter
	clock    timeutil.Clock
	counters *stats.Counters

	// entries and inodeOf are populated once by assignInodes inside New
	// and never touched again: the tree is immutable for the life of the
	// mount, so no lock guards them.
	entries []*tree.Entry
	inodeOf map[*tree.Entry]fuseops.InodeID

	// warnAppledouble controls whether a LookUpInode miss for a "._"
	// AppleDouble companion-file name is logged as a warning. Defaults to
	// true; --ignore-appledouble turns it off.
	warnAppledouble bool
}

// New builds a FileSystem over index. limiter, counters, and clock may be
// nil; a nil limiter disables throttling, a nil counters disables
// recording, and a nil clock defaults to the real wall clock.
func New(index *tree.Index, synthesizer *synth.Synthesizer, limiter *ratelimit.Limiter, counters *stats.Counters, clock timeutil.Clock) *FileSystem {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	f := &FileSystem{
		index:           index,
		synth:           synthesizer,
		limiter:         limiter,
		clock:           clock,
		counters:        counters,
		inodeOf:         make(map[*tree.Entry]fuseops.InodeID),
		warnAppledouble: true,
	}
	f.assignInodes()
	return f
}

// WithAppledoubleWarnings toggles whether a LookUpInode miss on a "._"
// companion-file name is logged as a warning, corresponding to the CLI's
// --ignore-appledouble flag. Returns f for chaining at construction time.
func (f *FileSystem) WithAppledoubleWarnings(warn bool) *FileSystem {
	f.warnAppledouble = warn
	return f
}

// assignInodes walks the tree breadth-first from the root, handing out
// sequential inode numbers starting at fuseops.RootInodeID. The mapping is
// computed once at construction and never changes: the tree is immutable
// for the life of the mount.
func (f *FileSystem) assignInodes() {
	f.entries = append(f.entries, f.index.Root)
	f.inodeOf[f.index.Root] = fuseops.RootInodeID

	queue := []*tree.Entry{f.index.Root}
	var next fuseops.InodeID = fuseops.RootInodeID + 1
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for _, c := range e.Children {
			f.entries = append(f.entries, c)
			f.inodeOf[c] = next
			next++
			if c.Kind == tree.KindDirectory {
				queue = append(queue, c)
			}
		}
	}
}

func (f *FileSystem) entryForInode(id fuseops.InodeID) (*tree.Entry, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(f.entries) {
		return nil, false
	}
	return f.entries[idx], true
}

func (f *FileSystem) inodeForEntry(e *tree.Entry) fuseops.InodeID {
	return f.inodeOf[e]
}

func attributesFor(e *tree.Entry) fuseops.InodeAttributes {
	mtime := e.Mtime
	mode := os.FileMode(e.Mode())
	if e.Kind == tree.KindDirectory {
		mode |= os.ModeDir
	}
	return fuseops.InodeAttributes{
		Size:   e.Size(),
		Nlink:  e.Nlink(),
		Mode:   mode,
		Uid:    e.Uid,
		Gid:    e.Gid,
		Atime:  mtime,
		Mtime:  mtime,
		Ctime:  mtime,
		Crtime: mtime,
	}
}

func direntType(k tree.Kind) fuseutil.DirentType {
	if k == tree.KindDirectory {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

// throttle applies the configured rate limiter, if any, and tallies a
// throttled op whenever the limiter actually made the caller wait.
func (f *FileSystem) throttle(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	waited, err := f.limiter.Wait(ctx)
	if waited && f.counters != nil {
		f.counters.RecordThrottled()
	}
	return err
}

func (f *FileSystem) recordDenied() {
	if f.counters != nil {
		f.counters.RecordDenied()
	}
}

// statfsBlockSize is the fixed block size reported by StatFS. There is no
// backing device whose real geometry could be reported instead.
const statfsBlockSize = 512

// StatFS reports a synthetic volume: a fixed block size, a total derived
// from the declared tree's byte count rounded up to whole blocks, and no
// free space anywhere, since nothing can ever be written. It never fails.
func (f *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = statfsBlockSize
	op.Blocks = (f.index.TotalBytes + statfsBlockSize - 1) / statfsBlockSize
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.Inodes = uint64(len(f.entries))
	op.InodesFree = 0
	return nil
}

// LookUpInode resolves op.Name within op.Parent.
func (f *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if err := f.throttle(ctx); err != nil {
		return err
	}
	if f.counters != nil {
		f.counters.RecordLookup()
	}

	parent, ok := f.entryForInode(op.Parent)
	if !ok {
		return syscall.ENOENT
	}

	// op.Name is the raw kernel-supplied component: a first-touch lookup
	// driven by a user syscall carries whatever Unicode form the caller
	// typed, which may differ from the form the tree was declared in.
	name := f.index.Sanitizer.Sanitize(op.Name)
	child, ok := parent.ChildByName(name)
	if !ok {
		// Host indexers probe for AppleDouble "._name" companions that never
		// exist in a declared tree; a miss on such a name is logged as a
		// suppressible warning. Other misses are not logged.
		if f.warnAppledouble && strings.HasPrefix(op.Name, "._") {
			logger.Warnf("lookup miss for probe path %q under inode %d", op.Name, op.Parent)
		}
		return syscall.ENOENT
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:      f.inodeForEntry(child),
		Attributes: attributesFor(child),
	}
	return nil
}

// GetInodeAttributes returns the fixed attributes for op.Inode.
func (f *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	if err := f.throttle(ctx); err != nil {
		return err
	}
	if f.counters != nil {
		f.counters.RecordGetattr()
	}

	e, ok := f.entryForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	op.Attributes = attributesFor(e)
	return nil
}

// SetInodeAttributes always fails: the mount is read-only.
func (f *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	f.recordDenied()
	return syscall.EROFS
}

// ForgetInode is a no-op: the tree is held in memory for the life of the
// mount regardless of kernel cache pressure.
func (f *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

// OpenDir allows opening any directory inode; there is no per-handle state
// to track since directory content never changes mid-mount.
func (f *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if _, ok := f.entryForInode(op.Inode); !ok {
		return syscall.ENOENT
	}
	return nil
}

// ReadDir serves directory entries directly out of the in-memory tree,
// using op.Offset as an index into the entry's ordered Children slice.
func (f *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if err := f.throttle(ctx); err != nil {
		return err
	}
	if f.counters != nil {
		f.counters.RecordReaddir()
	}

	e, ok := f.entryForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	if e.Kind != tree.KindDirectory {
		return syscall.ENOTDIR
	}

	if int(op.Offset) > len(e.Children) {
		return nil
	}

	for i, c := range e.Children[op.Offset:] {
		dirent := fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  f.inodeForEntry(c),
			Name:   c.Name,
			Type:   direntType(c.Kind),
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirent)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReleaseDirHandle is a no-op: OpenDir never allocates handle state.
func (f *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

// OpenFile allows opening any file inode read-only.
func (f *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	e, ok := f.entryForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	if e.Kind != tree.KindFile {
		return syscall.EISDIR
	}
	return nil
}

// ReadFile synthesizes content for the requested window on demand; nothing
// is ever read from or written to a backing store.
func (f *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	if err := f.throttle(ctx); err != nil {
		return err
	}

	e, ok := f.entryForInode(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	if e.Kind != tree.KindFile {
		return syscall.EISDIR
	}

	size := e.Size()
	offset := uint64(op.Offset)
	if offset >= size {
		op.BytesRead = 0
		if f.counters != nil {
			f.counters.RecordRead(0)
		}
		return nil
	}

	want := len(op.Dst)
	if remaining := size - offset; uint64(want) > remaining {
		want = int(remaining)
	}

	f.synth.Read(e.Path, offset, op.Dst[:want])
	op.BytesRead = want

	if f.counters != nil {
		f.counters.RecordRead(int64(want))
	}
	return nil
}

// ReleaseFileHandle is a no-op: OpenFile never allocates handle state.
func (f *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

// FlushFile is a no-op: there is nothing to persist.
func (f *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

// GetXattr always reports no such attribute: the tree carries no extended
// attributes.
func (f *FileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	if _, ok := f.entryForInode(op.Inode); !ok {
		return syscall.ENOENT
	}
	return syscall.ENODATA
}

// ListXattr always reports an empty attribute list, leaving op's
// kernel-supplied buffer untouched.
func (f *FileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	if _, ok := f.entryForInode(op.Inode); !ok {
		return syscall.ENOENT
	}
	return nil
}

// ReadSymlink always fails: a declared tree cannot contain symlinks, so
// any inode the kernel asks to resolve is answered the same way the
// mutating ops are.
func (f *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	return syscall.EROFS
}

// The following ops all mutate the tree in some way and are rejected
// outright: the mount never has a backing store to apply the mutation to.

func (f *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

func (f *FileSystem) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	f.recordDenied()
	return syscall.EROFS
}

func (f *FileSystem) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	f.recordDenied()
	return syscall.EROFS
}

var _ fuseutil.FileSystem = &FileSystem{}
