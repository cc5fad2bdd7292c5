package streamer

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStreamKey is returned when neither the request nor the
	// environment supplies a stream key.
	ErrMissingStreamKey = errors.New("missing stream key")

	// ErrManagerClosed is returned by StartStream after Close.
	ErrManagerClosed = errors.New("stream manager closed")
)

// AssetKind names the input an AssetNotFoundError refers to.
type AssetKind string

const (
	AssetAudio AssetKind = "audio"
	AssetVideo AssetKind = "video"
)

// AssetNotFoundError reports an inaccessible audio or video input.
type AssetNotFoundError struct {
	Kind AssetKind
	Path string

	// PoolSize is set for audio assets so the message names the expected files.
	PoolSize int
	Err      error
}

func (e *AssetNotFoundError) Error() string {
	if e.Kind == AssetAudio {
		return fmt.Sprintf("Audio file %s not found. Please ensure all audio files (1.mp3 through %d.mp3) are present in the assets directory.", e.Path, e.PoolSize)
	}
	return fmt.Sprintf("%s file %s is not accessible: %v", e.Kind, e.Path, e.Err)
}

func (e *AssetNotFoundError) Unwrap() error { return e.Err }

// EncodingError is a failure of the encoder process that is not a forced kill.
type EncodingError struct {
	Err    error
	Stdout string
	Stderr string
}

func (e *EncodingError) Error() string {
	return "encoder failed: " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error { return e.Err }
