package streamer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loop-streamer/internal/platform/metrics"

	"github.com/google/uuid"
)

const (
	// DefaultEndRestartDelay is the pause before restarting after the encoder exits cleanly.
	DefaultEndRestartDelay = 2 * time.Second
	// DefaultKillRestartDelay is the pause before restarting after the encoder was SIGKILLed.
	DefaultKillRestartDelay = 5 * time.Second
)

// AfterFunc schedules f after d and returns a function that cancels it.
// The cancel function reports whether f was prevented from running.
// f must run on its own goroutine, never inside the AfterFunc call.
type AfterFunc func(d time.Duration, f func()) (cancel func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records start, restart and exit counters. m may be nil.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithAccess replaces the file accessibility check.
func WithAccess(f AccessFunc) Option {
	return func(mgr *Manager) { mgr.access = f }
}

// WithAfterFunc replaces the restart scheduler.
func WithAfterFunc(f AfterFunc) Option {
	return func(mgr *Manager) { mgr.after = f }
}

// WithRand replaces the random source used to pick audio tracks.
func WithRand(intn func(n int) int) Option {
	return func(mgr *Manager) { mgr.intn = intn }
}

// WithRestartDelays overrides the delays after a clean exit and after a SIGKILL.
func WithRestartDelays(end, killed time.Duration) Option {
	return func(mgr *Manager) {
		mgr.endDelay = end
		mgr.killDelay = killed
	}
}

// WithEncoderName sets the binary name shown in start logs.
func WithEncoderName(name string) Option {
	return func(mgr *Manager) { mgr.encoderName = name }
}

// restartTimer is a pending automatic restart. Identity is the pointer.
type restartTimer struct {
	cancel func() bool
}

// Manager owns at most one live encoder session. Starting a new session
// terminates the previous one; clean exits and SIGKILLs schedule a restart.
type Manager struct {
	enc         Encoder
	pool        *AudioPool
	log         *slog.Logger
	metrics     *metrics.Metrics
	access      AccessFunc
	after       AfterFunc
	intn        func(n int) int
	endDelay    time.Duration
	killDelay   time.Duration
	encoderName string

	// mu serializes session changes. It is held across the spawn so that
	// concurrent starts supersede each other in order.
	mu      sync.Mutex
	gen     uint64
	current *session
	restart *restartTimer
	closed  bool

	watchers sync.WaitGroup
}

// NewManager returns a Manager spawning through enc and picking audio from pool.
func NewManager(enc Encoder, pool *AudioPool, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		enc:         enc,
		pool:        pool,
		log:         log,
		access:      StatAccess,
		after:       timeAfterFunc,
		endDelay:    DefaultEndRestartDelay,
		killDelay:   DefaultKillRestartDelay,
		encoderName: defaultFFmpegBin,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartStream verifies the inputs, terminates any live session and spawns a
// new encoder. It returns once the encoder is running, not when it exits.
// A failed input check leaves the live session untouched.
func (m *Manager) StartStream(ctx context.Context, cfg StreamConfig) error {
	m.log.Info("starting stream",
		slog.String("stream_url", cfg.StreamURL),
		slog.String("video_path", cfg.VideoPath),
		slog.Int("stream_key_length", len(cfg.StreamKey)),
	)

	if err := cfg.Validate(); err != nil {
		m.countStart("invalid")
		return err
	}

	audio := m.pool.Pick(m.intn)
	if err := m.access(audio); err != nil {
		m.log.Error("audio file not accessible", slog.String("audio_path", audio), slog.String("error", err.Error()))
		m.countStart("asset_missing")
		return &AssetNotFoundError{Kind: AssetAudio, Path: audio, PoolSize: m.pool.Size(), Err: err}
	}
	m.log.Info("selected audio file", slog.String("audio_path", audio))

	if err := m.access(cfg.VideoPath); err != nil {
		m.log.Error("video file not accessible", slog.String("video_path", cfg.VideoPath), slog.String("error", err.Error()))
		m.countStart("asset_missing")
		return &AssetNotFoundError{Kind: AssetVideo, Path: cfg.VideoPath, Err: err}
	}

	job := Job{VideoPath: cfg.VideoPath, AudioPath: audio, Destination: cfg.Destination()}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.countStart("closed")
		return ErrManagerClosed
	}
	if err := ctx.Err(); err != nil {
		m.countStart("cancelled")
		return err
	}

	m.cancelRestartLocked()
	m.supersedeLocked()

	m.gen++
	gen := m.gen

	proc, err := m.enc.Start(ctx, job)
	if err != nil {
		m.log.Error("encoder failed to start", slog.Uint64("generation", gen), slog.String("error", err.Error()))
		m.countStart("encoder_error")
		return &EncodingError{Err: err}
	}

	s := &session{
		id:        uuid.New().String(),
		gen:       gen,
		proc:      proc,
		cfg:       cfg,
		audio:     audio,
		startedAt: time.Now().UTC(),
	}
	m.current = s
	m.setActive(true)
	m.countStart("ok")

	m.log.Info("encoder started",
		slog.String("session_id", s.id),
		slog.Uint64("generation", gen),
		slog.Int("pid", proc.PID()),
		slog.String("audio_path", audio),
		slog.String("command", RedactedCommand(m.encoderName, job)),
	)

	m.watchers.Add(1)
	go m.watch(s)
	return nil
}

// supersedeLocked asks the live encoder to stop. Failures are logged only.
// Caller must hold m.mu.
func (m *Manager) supersedeLocked() {
	old := m.current
	if old == nil {
		return
	}
	m.current = nil
	m.setActive(false)
	if err := old.proc.Terminate(); err != nil {
		m.log.Error("error terminating previous encoder",
			slog.String("session_id", old.id),
			slog.Uint64("generation", old.gen),
			slog.String("error", err.Error()),
		)
		return
	}
	m.log.Info("terminated previous encoder", slog.String("session_id", old.id), slog.Uint64("generation", old.gen))
}

// watch waits for s to exit and applies the restart policy if s is still current.
func (m *Manager) watch(s *session) {
	defer m.watchers.Done()

	st := s.proc.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != s {
		m.log.Debug("ignoring exit of superseded encoder",
			slog.String("session_id", s.id),
			slog.Uint64("generation", s.gen),
		)
		m.countExit("superseded")
		return
	}
	m.current = nil
	m.setActive(false)

	switch {
	case st.Err == nil:
		m.countExit("end")
		m.log.Info("stream ended, restarting with new audio",
			slog.String("session_id", s.id),
			slog.Duration("delay", m.endDelay),
		)
		m.scheduleRestartLocked(s.cfg, m.endDelay, "end")
	case st.Killed():
		m.countExit("killed")
		m.log.Error("encoder was killed, restarting",
			slog.String("session_id", s.id),
			slog.String("error", s.cfg.Redact(st.Err.Error())),
			slog.String("stdout", s.cfg.Redact(st.Stdout)),
			slog.String("stderr", s.cfg.Redact(st.Stderr)),
			slog.Duration("delay", m.killDelay),
		)
		m.scheduleRestartLocked(s.cfg, m.killDelay, "killed")
	default:
		m.countExit("error")
		encErr := s.encodingError(st)
		m.log.Error("streaming error",
			slog.String("session_id", s.id),
			slog.String("error", encErr.Error()),
			slog.String("stdout", encErr.Stdout),
			slog.String("stderr", encErr.Stderr),
		)
	}
}

// encodingError wraps a failed exit with the key scrubbed from its output.
func (s *session) encodingError(st ExitStatus) *EncodingError {
	return &EncodingError{
		Err:    errors.New(s.cfg.Redact(st.Err.Error())),
		Stdout: s.cfg.Redact(st.Stdout),
		Stderr: s.cfg.Redact(st.Stderr),
	}
}

// scheduleRestartLocked replaces any pending restart with one for cfg after delay.
// Caller must hold m.mu.
func (m *Manager) scheduleRestartLocked(cfg StreamConfig, delay time.Duration, reason string) {
	if m.closed {
		return
	}
	m.cancelRestartLocked()

	t := &restartTimer{}
	t.cancel = m.after(delay, func() {
		m.mu.Lock()
		if m.closed || m.restart != t {
			m.mu.Unlock()
			return
		}
		m.restart = nil
		m.watchers.Add(1)
		m.mu.Unlock()
		defer m.watchers.Done()

		if err := m.StartStream(context.Background(), cfg); err != nil {
			m.log.Error("error in restart attempt", slog.String("reason", reason), slog.String("error", err.Error()))
		}
	})
	m.restart = t

	if m.metrics != nil {
		m.metrics.IncRestartScheduled(reason)
	}
}

// cancelRestartLocked drops the pending restart, if any. Caller must hold m.mu.
func (m *Manager) cancelRestartLocked() {
	if m.restart == nil {
		return
	}
	m.restart.cancel()
	m.restart = nil
	m.log.Debug("cancelled pending restart")
}

// Status returns a snapshot of the live session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{RestartPending: m.restart != nil}
	if s := m.current; s != nil {
		startedAt := s.startedAt
		st.Active = true
		st.SessionID = s.id
		st.Generation = s.gen
		st.PID = s.proc.PID()
		st.AudioPath = s.audio
		st.VideoPath = s.cfg.VideoPath
		st.StartedAt = &startedAt
	}
	return st
}

// Active reports whether an encoder session is live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Close cancels any pending restart, terminates the live encoder and waits
// for exit watchers and in-flight restarts until ctx is done. StartStream fails after Close.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelRestartLocked()
	m.supersedeLocked()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.watchers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("encoder did not exit before shutdown deadline"), ctx.Err())
	}
}

func (m *Manager) countStart(result string) {
	if m.metrics != nil {
		m.metrics.IncStreamStart(result)
	}
}

func (m *Manager) countExit(reason string) {
	if m.metrics != nil {
		m.metrics.IncEncoderExit(reason)
	}
}

func (m *Manager) setActive(active bool) {
	if m.metrics != nil {
		m.metrics.SetActiveSession(active)
	}
}
