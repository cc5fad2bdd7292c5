package streamer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"syscall"
	"time"
)

var (
	errTerminated = errors.New("signal: terminated")
	errKilled     = errors.New("signal: killed")
	errExit1      = errors.New("exit status 1")
)

const (
	sigterm = syscall.SIGTERM
	sigkill = syscall.SIGKILL
)

type fakeProcess struct {
	pid     int
	termErr error

	mu         sync.Mutex
	terminated int

	once   sync.Once
	done   chan struct{}
	status ExitStatus
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated++
	err := p.termErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.exit(ExitStatus{Err: errTerminated, Signal: sigterm})
	return nil
}

func (p *fakeProcess) Wait() ExitStatus {
	<-p.done
	return p.status
}

func (p *fakeProcess) exit(st ExitStatus) {
	p.once.Do(func() {
		p.status = st
		close(p.done)
	})
}

func (p *fakeProcess) terminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

type fakeEncoder struct {
	mu       sync.Mutex
	startErr error
	termErr  error
	jobs     []Job
	procs    []*fakeProcess
}

func (e *fakeEncoder) Start(ctx context.Context, job Job) (Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	p := newFakeProcess(1000 + len(e.procs))
	p.termErr = e.termErr
	e.jobs = append(e.jobs, job)
	e.procs = append(e.procs, p)
	return p, nil
}

func (e *fakeEncoder) proc(i int) *fakeProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[i]
}

func (e *fakeEncoder) job(i int) Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobs[i]
}

func (e *fakeEncoder) starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

type fakeTimer struct {
	delay     time.Duration
	f         func()
	cancelled bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) after(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		was := !t.cancelled
		t.cancelled = true
		return was
	}
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

// fire runs timer i's callback as the real timer would.
func (s *fakeScheduler) fire(i int) {
	s.timer(i).f()
}

// sequence returns an intn that yields picks in order, repeating the last one.
func sequence(picks ...int) func(int) int {
	var mu sync.Mutex
	i := 0
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		v := picks[i]
		if i < len(picks)-1 {
			i++
		}
		return v % n
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
