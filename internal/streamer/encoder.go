package streamer

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Encoder spawns encoder processes.
type Encoder interface {
	// Start spawns the process for job and returns once it is running.
	// ctx only gates the spawn; the process outlives it.
	Start(ctx context.Context, job Job) (Process, error)
}

// Process is a running encoder.
type Process interface {
	PID() int
	// Terminate asks the process to stop. It does not wait for exit.
	Terminate() error
	// Wait blocks until the process exits.
	Wait() ExitStatus
}

// ExitStatus describes how an encoder process finished.
type ExitStatus struct {
	Err error
	// Signal is the signal that terminated the process, or 0.
	Signal syscall.Signal
	Stdout string
	Stderr string
}

// Killed reports a SIGKILL termination, e.g. by the OOM killer or the platform.
func (s ExitStatus) Killed() bool {
	return s.Signal == syscall.SIGKILL
}

const (
	defaultFFmpegBin = "ffmpeg"
	outputTailBytes  = 16 << 10
)

// BuildArgs returns the ffmpeg argument list for job. The flag set is what the
// ingest service is known to accept; keep it stable.
func BuildArgs(job Job) []string {
	return []string{
		"-stream_loop", "-1",
		"-re",
		"-threads", "4",
		"-i", job.VideoPath,
		"-i", job.AudioPath,
		"-y",
		"-acodec", "aac",
		"-vcodec", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-maxrate", "1500k",
		"-bufsize", "3000k",
		"-pix_fmt", "yuv420p",
		"-g", "50",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-f", "flv",
		"-threads", "4",
		"-cpu-used", "4",
		job.Destination,
	}
}

// RedactedCommand renders the command line with the destination replaced,
// so it can be logged without leaking the stream key.
func RedactedCommand(bin string, job Job) string {
	args := BuildArgs(job)
	args[len(args)-1] = "<destination>"
	return bin + " " + strings.Join(args, " ")
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	BinPath string
}

// NewFFmpeg returns an Encoder using binPath, or "ffmpeg" from PATH when empty.
func NewFFmpeg(binPath string) *FFmpeg {
	if binPath == "" {
		binPath = defaultFFmpegBin
	}
	return &FFmpeg{BinPath: binPath}
}

// Start implements Encoder.Start.
func (f *FFmpeg) Start(ctx context.Context, job Job) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not CommandContext: the broadcast must survive the triggering request.
	cmd := exec.Command(f.BinPath, BuildArgs(job)...)
	setProcessGroup(cmd)

	p := &ffmpegProcess{
		cmd:    cmd,
		stdout: newTailBuffer(outputTailBytes),
		stderr: newTailBuffer(outputTailBytes),
		done:   make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go p.reap()
	return p, nil
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout *tailBuffer
	stderr *tailBuffer

	done   chan struct{}
	status ExitStatus
}

func (p *ffmpegProcess) reap() {
	err := p.cmd.Wait()
	p.status = ExitStatus{
		Err:    err,
		Signal: exitSignal(err),
		Stdout: p.stdout.String(),
		Stderr: p.stderr.String(),
	}
	close(p.done)
}

func (p *ffmpegProcess) PID() int { return p.cmd.Process.Pid }

func (p *ffmpegProcess) Terminate() error {
	select {
	case <-p.done:
		return errors.New("process already exited")
	default:
	}
	return terminate(p.cmd)
}

func (p *ffmpegProcess) Wait() ExitStatus {
	<-p.done
	return p.status
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
