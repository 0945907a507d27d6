// Package cmd implements treefuse's command-line surface: a single cobra
// command taking a document path and a mount point, in the gcsfuse
// cmd/root.go idiom but flags-only, with no config file or viper layer.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"treefuse/internal/blockcache"
	"treefuse/internal/fs"
	"treefuse/internal/fserrors"
	"treefuse/internal/logger"
	"treefuse/internal/mountutil"
	"treefuse/internal/pathutil"
	"treefuse/internal/ratelimit"
	"treefuse/internal/sizeutil"
	"treefuse/internal/stats"
	"treefuse/internal/synth"
	"treefuse/internal/tree"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// Process exit codes.
const (
	exitOK           = 0
	exitInvalidDoc   = 1
	exitMountFailure = 2
	exitUsage        = 64
)

// exitError pairs an error with the process exit code it should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type flags struct {
	logLevel             string
	logToSyslog          bool
	rateLimit            float64
	iopLimit             int
	reportStats          bool
	blockSize            sizeutil.Value
	preGeneratedBlocks   int
	seed                 int64
	fillChar             string
	semiRandom           bool
	noMacosCacheFiles    bool
	ignoreAppledouble    bool
	uid                  uint32
	gid                  uint32
	mtime                string
	unicodeNormalization string

	// fillCharSet records whether --fill-char was given explicitly, so the
	// mutual-exclusion check against --semi-random doesn't fire on the
	// flag's default value.
	fillCharSet bool
}

func newRootCmd() *cobra.Command {
	f := &flags{
		blockSize: sizeutil.Value{V: blockcache.DefaultBlockSize},
	}

	cmd := &cobra.Command{
		Use:   "treefuse <document> <mount-point>",
		Short: "Mount a declarative JSON tree as a read-only synthetic filesystem",
		// cobra handles --version itself, before positional-argument
		// validation, so "treefuse --version" works without a document or
		// mount point.
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.fillCharSet = cmd.Flags().Changed("fill-char")
			return run(cmd.Context(), args[0], args[1], f)
		},
		SilenceUsage: true,
	}

	flagSet := cmd.Flags()
	flagSet.StringVar(&f.logLevel, "log-level", "INFO", "reporter/diagnostic verbosity: DEBUG, INFO, WARNING, ERROR, CRITICAL")
	flagSet.BoolVar(&f.logToSyslog, "log-to-syslog", false, "route diagnostics to the system log instead of standard output")
	flagSet.Float64Var(&f.rateLimit, "rate-limit", 0, "minimum inter-op spacing, in seconds")
	flagSet.IntVar(&f.iopLimit, "iop-limit", 0, "per-second operation cap")
	flagSet.BoolVar(&f.reportStats, "report-stats", false, "periodically log operation and byte counters")
	flagSet.Var(&f.blockSize, "block-size", "block size for semi-random content generation")
	flagSet.IntVar(&f.preGeneratedBlocks, "pre-generated-blocks", blockcache.DefaultBlockCount, "number of blocks to pre-generate")
	flagSet.Int64Var(&f.seed, "seed", 4, "seed for the semi-random block generator")
	flagSet.StringVar(&f.fillChar, "fill-char", "\x00", "single character used to fill file content")
	flagSet.BoolVar(&f.semiRandom, "semi-random", false, "fill file content with deterministic pseudo-random bytes instead of a constant")
	flagSet.BoolVar(&f.noMacosCacheFiles, "no-macos-cache-files", false, "suppress synthetic cache-suppression root entries")
	flagSet.BoolVar(&f.ignoreAppledouble, "ignore-appledouble", false, "silence the warning class for missing \"._\" companion files")
	flagSet.Uint32Var(&f.uid, "uid", uint32(os.Getuid()), "uniform owning uid")
	flagSet.Uint32Var(&f.gid, "gid", uint32(os.Getgid()), "uniform owning gid")
	flagSet.StringVar(&f.mtime, "mtime", "2017-10-17", "uniform modification time, as YYYY-MM-DD or a Unix epoch integer")
	flagSet.StringVar(&f.unicodeNormalization, "unicode-normalization", "NFD", "path normalization form: NFC, NFD, NFKC, NFKD, none")

	return cmd
}

// Execute runs the command tree and translates its outcome into a process
// exit code: 0 on clean unmount, 1 on document validation failure, 2 on
// mount failure, 64 on CLI misuse.
func Execute() {
	cmd := newRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	err := cmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, ee.err)
		os.Exit(ee.code)
	}

	// cobra's own argument/flag parsing errors: CLI misuse.
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitUsage)
}

func run(ctx context.Context, docPath, mountPoint string, f *flags) error {
	if err := logger.Init(logger.Config{Severity: f.logLevel, Syslog: f.logToSyslog}); err != nil {
		return &exitError{exitUsage, fmt.Errorf("initializing logger: %w", err)}
	}

	form, ok := pathutil.ParseForm(f.unicodeNormalization)
	if !ok {
		return &exitError{exitUsage, fmt.Errorf("%w: unknown --unicode-normalization %q", fserrors.ErrInvalidConfig, f.unicodeNormalization)}
	}

	mtime, err := parseMtime(f.mtime)
	if err != nil {
		return &exitError{exitUsage, fmt.Errorf("%w: %v", fserrors.ErrInvalidConfig, err)}
	}

	if f.semiRandom && f.fillCharSet {
		return &exitError{exitUsage, fmt.Errorf("%w: --semi-random and --fill-char are mutually exclusive", fserrors.ErrInvalidConfig)}
	}
	// synth.NewFill takes a single byte, not a code point: reject anything
	// that isn't exactly one byte rather than accept a multi-byte rune and
	// silently truncate it to its lead byte.
	if len(f.fillChar) != 1 {
		return &exitError{exitUsage, fmt.Errorf("%w: --fill-char must be exactly one byte", fserrors.ErrInvalidConfig)}
	}
	if f.rateLimit < 0 {
		return &exitError{exitUsage, fmt.Errorf("%w: --rate-limit must be non-negative", fserrors.ErrInvalidConfig)}
	}
	if f.iopLimit < 0 {
		return &exitError{exitUsage, fmt.Errorf("%w: --iop-limit must be non-negative", fserrors.ErrInvalidConfig)}
	}
	// The block cache divides by both of these on every semi-random read; a
	// degenerate value must abort here, not panic under the first callback.
	if f.preGeneratedBlocks < 1 {
		return &exitError{exitUsage, fmt.Errorf("%w: --pre-generated-blocks must be at least 1", fserrors.ErrInvalidConfig)}
	}
	if f.blockSize.V < 1 {
		return &exitError{exitUsage, fmt.Errorf("%w: --block-size must be at least 1", fserrors.ErrInvalidConfig)}
	}

	document, err := os.ReadFile(docPath)
	if err != nil {
		return &exitError{exitInvalidDoc, fmt.Errorf("%w: reading document: %v", fserrors.ErrInvalidDocument, err)}
	}

	loader := tree.NewLoader(tree.Options{
		Form:                     form,
		Uid:                      f.uid,
		Gid:                      f.gid,
		Mtime:                    mtime,
		AddCacheSuppressionFiles: !f.noMacosCacheFiles,
	})

	index, err := loader.Load(document)
	if err != nil {
		return &exitError{exitInvalidDoc, err}
	}
	logger.Infof("loaded tree: %d files, %s", index.TotalFiles, sizeutil.HumanizeBytes(index.TotalBytes))

	synthesizer := buildSynthesizer(f)
	limiter := buildLimiter(f)
	counters := &stats.Counters{}

	fileSystem := fs.New(index, synthesizer, limiter, counters, nil).
		WithAppledoubleWarnings(!f.ignoreAppledouble)

	if f.reportStats {
		reporter := stats.NewReporter(counters, logger.Default(), time.Second)
		go reporter.Run(ctx)
	}

	mfs, err := mountutil.Mount(ctx, fileSystem, mountutil.Options{
		MountPoint: mountPoint,
		FSName:     "treefuse",
		ReadOnly:   true,
	})
	if err != nil {
		return &exitError{exitMountFailure, fmt.Errorf("%w: %v", fserrors.ErrMount, err)}
	}

	go func() {
		<-ctx.Done()
		_ = mountutil.Unmount(mountPoint)
	}()

	if err := mountutil.Join(ctx, mfs); err != nil {
		return &exitError{exitMountFailure, fmt.Errorf("%w: %v", fserrors.ErrMount, err)}
	}
	return nil
}

func buildSynthesizer(f *flags) *synth.Synthesizer {
	if f.semiRandom {
		cache := blockcache.New(uint64(f.seed), f.preGeneratedBlocks, int(f.blockSize.V))
		return synth.NewSemiRandom(cache)
	}
	return synth.NewFill(f.fillChar[0], 0)
}

func buildLimiter(f *flags) *ratelimit.Limiter {
	if f.rateLimit <= 0 && f.iopLimit <= 0 {
		return nil
	}
	spacing := time.Duration(f.rateLimit * float64(time.Second))
	return ratelimit.New(nil, spacing, f.iopLimit)
}

func parseMtime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0), nil
	}
	return time.Time{}, fmt.Errorf("--mtime %q is neither YYYY-MM-DD nor a Unix epoch integer", s)
}
