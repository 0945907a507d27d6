// Package mountutil wraps the jacobsa/fuse mount/unmount lifecycle, the
// same two calls samples/mount_readbenchfs wires up directly in main:
// fuse.Mount to attach the server, and MountedFileSystem.Join to block
// until the kernel tears it down.
package mountutil

import (
	"context"
	"io"
	"log"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

// Options configures the mount.
type Options struct {
	MountPoint      string
	FSName          string
	VolumeName      string
	ReadOnly        bool
	UseVectoredRead bool
	FuseOptions     map[string]string
	DebugLogWriter  io.Writer
}

// Mount attaches fs at opts.MountPoint and returns the handle used to wait
// for unmount. The filesystem is always served read-only from the kernel's
// perspective regardless of opts.ReadOnly, since nothing in fs ever
// succeeds a mutating op; opts.ReadOnly additionally asks the kernel to
// enforce this at the VFS layer.
func Mount(ctx context.Context, fs fuseutil.FileSystem, opts Options) (*fuse.MountedFileSystem, error) {
	cfg := &fuse.MountConfig{
		FSName:          opts.FSName,
		Subtype:         "treefuse",
		VolumeName:      opts.VolumeName,
		ReadOnly:        opts.ReadOnly,
		UseVectoredRead: opts.UseVectoredRead,
		Options:         opts.FuseOptions,
	}
	if opts.DebugLogWriter != nil {
		cfg.DebugLogger = log.New(opts.DebugLogWriter, "fuse: ", 0)
	}

	server := fuseutil.NewFileSystemServer(fs)
	return fuse.Mount(opts.MountPoint, server, cfg)
}

// Join blocks until mfs is unmounted, returning any error the kernel
// reported for the mount's lifetime.
func Join(ctx context.Context, mfs *fuse.MountedFileSystem) error {
	return mfs.Join(ctx)
}

// Unmount requests that the kernel tear down the mount at mountPoint. cmd
// calls it on SIGINT/SIGTERM for a clean shutdown without waiting for an
// external umount(8).
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
