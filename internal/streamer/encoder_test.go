package streamer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	job := Job{VideoPath: "assets/loop.mp4", AudioPath: "assets/2.mp3", Destination: "rtmp://ingest/live2/key"}

	want := "-stream_loop -1 -re -threads 4 -i assets/loop.mp4 -i assets/2.mp3 -y " +
		"-acodec aac -vcodec libx264 -preset ultrafast -tune zerolatency -maxrate 1500k -bufsize 3000k " +
		"-pix_fmt yuv420p -g 50 -c:a aac -b:a 128k -ar 44100 -f flv -threads 4 -cpu-used 4 rtmp://ingest/live2/key"
	assert.Equal(t, want, strings.Join(BuildArgs(job), " "))
}

func TestRedactedCommand(t *testing.T) {
	job := Job{VideoPath: "v.mp4", AudioPath: "a.mp3", Destination: "rtmp://ingest/live2/very-secret"}
	cmd := RedactedCommand("ffmpeg", job)

	assert.True(t, strings.HasPrefix(cmd, "ffmpeg -stream_loop -1"))
	assert.True(t, strings.HasSuffix(cmd, "<destination>"))
	assert.NotContains(t, cmd, "very-secret")
}

func TestStreamConfig_Destination(t *testing.T) {
	cfg := StreamConfig{StreamURL: "rtmp://a.rtmp.youtube.com/live2/", StreamKey: "k"}
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/k", cfg.Destination())
}

func TestFFmpeg_Start_missingBinary(t *testing.T) {
	f := NewFFmpeg("/nonexistent/ffmpeg-binary")
	_, err := f.Start(context.Background(), Job{VideoPath: "v", AudioPath: "a", Destination: "d"})
	assert.Error(t, err)
}

func TestFFmpeg_Start_cancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFFmpeg("").Start(ctx, Job{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFFmpeg_defaultBinary(t *testing.T) {
	assert.Equal(t, "ffmpeg", NewFFmpeg("").BinPath)
}

func TestTailBuffer_keepsTail(t *testing.T) {
	tb := newTailBuffer(8)
	_, err := tb.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = tb.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, "456789ab", tb.String())
}

func TestAudioPool(t *testing.T) {
	pool := NewAudioPool("assets", 0)
	require.Equal(t, DefaultPoolSize, pool.Size())
	assert.Equal(t, []string{"assets/1.mp3", "assets/2.mp3", "assets/3.mp3"}, pool.Paths())
	assert.Equal(t, "assets/3.mp3", pool.Pick(func(n int) int { return n - 1 }))

	five := NewAudioPool("assets", 5)
	assert.Equal(t, "assets/5.mp3", five.Pick(func(n int) int { return 4 }))

	got := pool.Pick(nil)
	assert.Contains(t, pool.Paths(), got)
}

func TestAssetNotFoundError_messages(t *testing.T) {
	audio := &AssetNotFoundError{Kind: AssetAudio, Path: "assets/4.mp3", PoolSize: 5}
	assert.Contains(t, audio.Error(), "1.mp3 through 5.mp3")

	video := &AssetNotFoundError{Kind: AssetVideo, Path: "loop.mp4", Err: assert.AnError}
	assert.ErrorIs(t, video, assert.AnError)
	assert.Contains(t, video.Error(), "loop.mp4")
}
