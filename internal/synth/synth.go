// Package synth synthesizes file content on demand for an arbitrary
// (path, offset, length) read window, either as a constant fill byte or as
// deterministic pseudo-random bytes drawn from a block cache.
//
// A Synthesizer never allocates a buffer larger than the caller's
// requested length: callers pass in a destination slice already sized to
// min(L, fileSize-offset) and Synthesizer.Read fills it in place, mirroring
// the zero-copy style of jacobsa-fuse's readbenchfs.ReadFile.
package synth

import (
	"crypto/md5"
	"encoding/binary"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"treefuse/internal/blockcache"
)

// maxFillBufferLen bounds the pre-materialized fill buffer: requests
// longer than this are served by repeating slices of it rather than
// growing it further.
const maxFillBufferLen = 1 << 20 // 1 MiB

// defaultFillLRUCapacity is the recommended LRU size for distinct
// (fillByte, length) pairs.
const defaultFillLRUCapacity = 1000

// Synthesizer produces file content for fill mode or semi-random mode.
// Exactly one mode is active per instance, selected at construction.
type Synthesizer struct {
	fillByte byte
	fillLRU  *lru.Cache[int, []byte]
	isFill   bool

	cache *blockcache.Cache
}

// NewFill builds a Synthesizer in fill mode: every output byte equals
// fillByte. lruCapacity <= 0 falls back to defaultFillLRUCapacity.
func NewFill(fillByte byte, lruCapacity int) *Synthesizer {
	if lruCapacity <= 0 {
		lruCapacity = defaultFillLRUCapacity
	}
	c, err := lru.New[int, []byte](lruCapacity)
	if err != nil {
		panic(err)
	}
	return &Synthesizer{fillByte: fillByte, fillLRU: c, isFill: true}
}

// NewSemiRandom builds a Synthesizer in semi-random mode, drawing content
// from the given block cache.
func NewSemiRandom(cache *blockcache.Cache) *Synthesizer {
	return &Synthesizer{cache: cache}
}

// Read fills dst with the bytes for path at the given absolute file
// offset. The caller is responsible for sizing dst to
// min(requestedLength, fileSize-offset) beforehand; Read always fills the
// whole of dst.
func (s *Synthesizer) Read(path string, offset uint64, dst []byte) {
	if len(dst) == 0 {
		return
	}
	if s.isFill {
		s.readFill(dst)
		return
	}
	s.readSemiRandom(path, offset, dst)
}

func (s *Synthesizer) readFill(dst []byte) {
	n := len(dst)
	if n > maxFillBufferLen {
		n = maxFillBufferLen
	}

	buf, ok := s.fillLRU.Get(n)
	if !ok {
		buf = make([]byte, n)
		for i := range buf {
			buf[i] = s.fillByte
		}
		s.fillLRU.Add(n, buf)
	}

	pos := 0
	for pos < len(dst) {
		pos += copy(dst[pos:], buf)
	}
}

func (s *Synthesizer) readSemiRandom(path string, offset uint64, dst []byte) {
	blockSize := uint64(s.cache.BlockSize())
	blockCount := uint64(s.cache.BlockCount())

	pos := uint64(0)
	for pos < uint64(len(dst)) {
		abs := offset + pos
		blockNum := abs / blockSize
		within := abs % blockSize

		idx := blockIndex(path, blockNum, blockCount)
		block := s.cache.Block(idx)

		n := copy(dst[pos:], block[within:])
		pos += uint64(n)
	}
}

// blockIndex maps (path, blockNum) to a block within [0, blockCount) by
// hashing "path\0blockNum" with MD5 and folding the first 8 bytes to a
// uint64, modulo blockCount. This guarantees determinism and makes block
// selection independent across distinct files.
func blockIndex(path string, blockNum uint64, blockCount uint64) uint64 {
	h := md5.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(blockNum, 10)))
	sum := h.Sum(nil)

	folded := binary.BigEndian.Uint64(sum[:8])
	return folded % blockCount
}
