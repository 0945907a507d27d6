package tree

import (
	"fmt"
	"strings"
	"time"

	"treefuse/internal/fserrors"
	"treefuse/internal/pathutil"
)

// Options configures a Loader.
type Options struct {
	Form        pathutil.Form
	LRUCapacity int
	Uid, Gid    uint32
	Mtime       time.Time

	// AddCacheSuppressionFiles adds the small, fixed set of zero-byte
	// host-indexer sentinel files to the root directory. Corresponds to
	// the CLI default of --no-macos-cache-files being unset.
	AddCacheSuppressionFiles bool
}

// cacheSuppressionFiles is the fixed list of synthetic root entries added
// when AddCacheSuppressionFiles is set. They are indistinguishable from
// declared files at the callback boundary.
var cacheSuppressionFiles = []string{".metadata_never_index", ".Trash", ".VolumeIcon.icns"}

// Loader validates and ingests a source document into an immutable Index.
// It is the only code that writes the directory index.
type Loader struct {
	opts      Options
	sanitizer *pathutil.Sanitizer
}

// NewLoader constructs a Loader. The same sanitizer instance backs every
// Load call, so its LRU amortizes across repeated mounts in tests.
func NewLoader(opts Options) *Loader {
	return &Loader{
		opts:      opts,
		sanitizer: pathutil.New(opts.Form, opts.LRUCapacity),
	}
}

// Index is the immutable, path-keyed view of a loaded tree.
type Index struct {
	Root       *Entry
	byPath     map[string]*Entry
	TotalFiles int
	TotalBytes uint64

	// Sanitizer is the same normalizer instance the loader used to build
	// the index, shared here so the callback surface can canonicalize a
	// raw kernel-supplied path component before a child lookup, rather
	// than assuming every caller has already seen it through ReadDir.
	Sanitizer *pathutil.Sanitizer
}

// Lookup returns the entry at the given already-sanitized absolute path.
// Membership in the index is the definition of existence: a miss is a
// definitive "does not exist" answer, never an allocation.
func (ix *Index) Lookup(path string) (*Entry, bool) {
	e, ok := ix.byPath[path]
	return e, ok
}

// Load parses and validates the document, then builds the Index in a
// single pass.
func (l *Loader) Load(document []byte) (*Index, error) {
	nodes, err := parseDocument(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fserrors.ErrInvalidDocument, err)
	}

	root := &Entry{
		Kind:  KindDirectory,
		Name:  "",
		Path:  "/",
		Uid:   l.opts.Uid,
		Gid:   l.opts.Gid,
		Mtime: l.opts.Mtime,
	}

	ix := &Index{
		Root:      root,
		byPath:    map[string]*Entry{"/": root},
		Sanitizer: l.sanitizer,
	}

	for i := range nodes {
		if err := l.insert(ix, root, &nodes[i], "/"); err != nil {
			return nil, err
		}
	}

	if l.opts.AddCacheSuppressionFiles {
		l.addCacheSuppressionFiles(ix, root)
	}

	return ix, nil
}

func (l *Loader) addCacheSuppressionFiles(ix *Index, root *Entry) {
	for _, name := range cacheSuppressionFiles {
		normalized := l.sanitizer.Sanitize(name)
		if _, exists := root.childByName(normalized); exists {
			// A declared entry with the same name wins; don't shadow it.
			continue
		}
		e := &Entry{
			Kind:  KindFile,
			Name:  normalized,
			Path:  joinPath(root.Path, normalized),
			Uid:   l.opts.Uid,
			Gid:   l.opts.Gid,
			Mtime: l.opts.Mtime,
		}
		root.addChild(e)
		ix.byPath[e.Path] = e
	}
}

// insert validates one node and recursively inserts its subtree, composing
// absolute paths from the already-normalized ancestor chain.
func (l *Loader) insert(ix *Index, parent *Entry, n *rawNode, parentPath string) error {
	name := l.sanitizer.Sanitize(n.Name)

	if n.Name == "" {
		return l.invalid(parentPath, "node is missing a name")
	}
	if strings.Contains(n.Name, "/") {
		return l.invalid(parentPath, fmt.Sprintf("name %q contains '/'", n.Name))
	}
	if strings.Contains(n.Name, "\x00") {
		return l.invalid(parentPath, fmt.Sprintf("name %q contains a NUL byte", n.Name))
	}
	// Compatibility normalization can itself produce a separator: NFKC maps
	// U+FF0F (fullwidth solidus) to "/". A name that only becomes a
	// separator after normalization is just as unrepresentable as one that
	// started with it.
	if strings.Contains(name, "/") {
		return l.invalid(parentPath, fmt.Sprintf("name %q normalizes to a name containing '/'", n.Name))
	}

	path := joinPath(parentPath, name)

	if _, dup := parent.childByName(name); dup {
		return l.invalid(path, "duplicate sibling name after normalization")
	}

	var kind Kind
	switch n.Type {
	case "file":
		kind = KindFile
	case "directory":
		kind = KindDirectory
	case "":
		return l.invalid(path, "node is missing a type")
	default:
		return l.invalid(path, fmt.Sprintf("unknown type %q", n.Type))
	}

	// size is a required field for a file (it is the node's logical
	// content length); for a directory it is only an advisory hint that
	// GetAttr never reports, so a missing value quietly defaults to zero
	// instead of being rejected.
	size, err := nodeSize(n, kind == KindFile)
	if err != nil {
		return l.invalid(path, err.Error())
	}

	entry := &Entry{
		Name:         name,
		Path:         path,
		Kind:         kind,
		advisorySize: size,
		Uid:          l.opts.Uid,
		Gid:          l.opts.Gid,
		Mtime:        l.opts.Mtime,
	}

	if kind == KindFile {
		if len(n.Contents) != 0 {
			return l.invalid(path, "a file node must not carry contents")
		}
		ix.TotalFiles++
		ix.TotalBytes += size
	}

	parent.addChild(entry)
	ix.byPath[path] = entry

	if kind == KindDirectory {
		for i := range n.Contents {
			if err := l.insert(ix, entry, &n.Contents[i], path); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *Loader) invalid(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", fserrors.ErrInvalidDocument, path, reason)
}

// nodeSize validates and returns a node's declared size. required is true
// for file nodes, whose size is the logical content length; a missing size
// on a directory node is merely a missing advisory hint and quietly
// defaults to zero instead.
func nodeSize(n *rawNode, required bool) (uint64, error) {
	if n.Size == nil {
		if required {
			return 0, fmt.Errorf("node is missing a size")
		}
		return 0, nil
	}

	i, err := n.Size.Int64()
	if err != nil {
		return 0, fmt.Errorf("size %q is not an integer", n.Size.String())
	}
	if i < 0 {
		return 0, fmt.Errorf("size %d is negative", i)
	}
	// Must survive on signed 64-bit metadata fields.
	if uint64(i) >= 1<<63 {
		return 0, fmt.Errorf("size %d does not fit in 63 bits", i)
	}

	return uint64(i), nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
