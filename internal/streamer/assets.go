package streamer

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultPoolSize is the number of numbered audio files expected in the asset directory.
const DefaultPoolSize = 3

// AccessFunc reports whether path can be opened. A nil error means accessible.
type AccessFunc func(path string) error

// StatAccess checks that path exists.
func StatAccess(path string) error {
	_, err := os.Stat(path)
	return err
}

// AudioPool is the fixed set of audio tracks <dir>/1.mp3 .. <dir>/<size>.mp3.
// Membership does not depend on what is on disk; accessibility is checked per pick.
type AudioPool struct {
	paths []string
}

// NewAudioPool builds the pool. size <= 0 falls back to DefaultPoolSize.
func NewAudioPool(dir string, size int) *AudioPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	paths := make([]string, size)
	for i := range paths {
		paths[i] = filepath.Join(dir, strconv.Itoa(i+1)+".mp3")
	}
	return &AudioPool{paths: paths}
}

// Size returns the number of tracks in the pool.
func (p *AudioPool) Size() int { return len(p.paths) }

// Paths returns a copy of the pool's file paths.
func (p *AudioPool) Paths() []string {
	return append([]string(nil), p.paths...)
}

// Pick selects a track uniformly at random. intn may be nil to use math/rand.
func (p *AudioPool) Pick(intn func(n int) int) string {
	if intn == nil {
		intn = rand.Intn
	}
	return p.paths[intn(len(p.paths))]
}
