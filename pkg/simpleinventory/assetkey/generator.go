package assetkey

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxExtLength caps the sanitized extension, excluding the leading dot.
const MaxExtLength = 16

// Generator defines the interface for asset naming strategies
type Generator interface {
	// NewKey returns a fresh, never before issued key. ext is an untrusted
	// hint such as ".JPG" or "photo.png".
	NewKey(ext string) string
}

// TimestampGenerator names assets by a nanosecond timestamp. The stem is
// forced strictly increasing, so two keys issued within one clock tick still
// differ.
type TimestampGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{now: time.Now}
}

// NewTimestampGeneratorWithClock is used by tests to pin the clock.
func NewTimestampGeneratorWithClock(now func() time.Time) *TimestampGenerator {
	return &TimestampGenerator{now: now}
}

func (g *TimestampGenerator) NewKey(ext string) string {
	g.mu.Lock()
	stamp := g.now().UnixNano()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	g.mu.Unlock()

	return strconv.FormatInt(stamp, 10) + SanitizeExt(ext)
}

// ShardedGenerator places keys from Base under a directory derived from a
// hash of the key, spreading files across ShardLength-character buckets:
// 3f/1760000000000000000.jpg
type ShardedGenerator struct {
	Base        Generator
	ShardLength int
}

func NewShardedGenerator(base Generator) *ShardedGenerator {
	return &ShardedGenerator{Base: base, ShardLength: 2}
}

func (g *ShardedGenerator) NewKey(ext string) string {
	key := g.Base.NewKey(ext)

	shardLength := g.ShardLength
	if shardLength <= 0 {
		return key
	}
	hash := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(hash[:])
	if shardLength > len(digest) {
		shardLength = len(digest)
	}
	return path.Join(digest[:shardLength], key)
}

// CustomFuncGenerator adapts a function to the Generator interface
type CustomFuncGenerator struct {
	GenerateFunc func(ext string) string
}

func NewCustomFuncGenerator(fn func(ext string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) NewKey(ext string) string {
	return g.GenerateFunc(ext)
}

// SanitizeExt turns an extension hint into ".ext" made of lowercase ASCII
// letters and digits, or "" when nothing usable is left. A full filename is
// accepted and reduced to its extension.
func SanitizeExt(ext string) string {
	if i := strings.LastIndexAny(ext, `/\`); i >= 0 {
		ext = ext[i+1:]
	}
	if i := strings.LastIndex(ext, "."); i >= 0 {
		ext = ext[i+1:]
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, ext)

	if cleaned == "" {
		return ""
	}
	if len(cleaned) > MaxExtLength {
		cleaned = cleaned[:MaxExtLength]
	}
	return "." + cleaned
}

// Validate rejects refs that could escape the asset root: empty refs,
// absolute paths, backslashes and ".." segments.
func Validate(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) {
		return false
	}
	for _, segment := range strings.Split(ref, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

// NewDefaultGenerator returns the generator used when none is configured
func NewDefaultGenerator() Generator {
	return NewTimestampGenerator()
}
