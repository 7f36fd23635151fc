package mock

import (
	"context"
	"sync"

	"gitlab.com/vulnscan/vscan"
)

// Process is a fake engine process
type Process struct {
	Pid      int
	OutputFn func() string

	KillFn     func() error
	KillCalled bool

	exitOnce sync.Once
	exited   chan struct{}
}

// MakeMockProcess that runs until Exit or Kill is called
func MakeMockProcess(pid int) *Process {
	p := &Process{Pid: pid, exited: make(chan struct{})}
	p.OutputFn = func() string {
		return "fake engine output"
	}
	p.KillFn = func() error {
		p.Exit()
		return nil
	}
	return p
}

// PID of the fake process
func (p *Process) PID() int {
	return p.Pid
}

// Exited is closed by Exit
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Output of the fake process
func (p *Process) Output() string {
	return p.OutputFn()
}

// Kill the fake process
func (p *Process) Kill() error {
	p.KillCalled = true
	return p.KillFn()
}

// Exit simulates the process exiting on its own
func (p *Process) Exit() {
	p.exitOnce.Do(func() { close(p.exited) })
}

// ProcessHost records calls in order so tests can check kill-before-spawn
type ProcessHost struct {
	mu    sync.Mutex
	Calls []string

	SpawnFn func(ctx context.Context, spec *vscan.ProcessSpec) (vscan.ManagedProcess, error)
	Spawned []*vscan.ProcessSpec

	FindFn func(match string) ([]int, error)

	TerminateFn func(pid int) error
	Terminated  []int
}

// MakeMockProcessHost spawns the given process and finds nothing running
func MakeMockProcessHost(proc *Process) *ProcessHost {
	h := &ProcessHost{Calls: make([]string, 0)}
	h.SpawnFn = func(ctx context.Context, spec *vscan.ProcessSpec) (vscan.ManagedProcess, error) {
		return proc, nil
	}
	h.FindFn = func(match string) ([]int, error) {
		return []int{}, nil
	}
	h.TerminateFn = func(pid int) error {
		return nil
	}
	return h
}

// Spawn a fake process
func (h *ProcessHost) Spawn(ctx context.Context, spec *vscan.ProcessSpec) (vscan.ManagedProcess, error) {
	h.record("spawn")
	h.mu.Lock()
	h.Spawned = append(h.Spawned, spec)
	h.mu.Unlock()
	return h.SpawnFn(ctx, spec)
}

// Find fake processes
func (h *ProcessHost) Find(match string) ([]int, error) {
	h.record("find")
	return h.FindFn(match)
}

// Terminate a fake process
func (h *ProcessHost) Terminate(pid int) error {
	h.record("terminate")
	h.mu.Lock()
	h.Terminated = append(h.Terminated, pid)
	h.mu.Unlock()
	return h.TerminateFn(pid)
}

// SpawnCount returns how many processes were spawned
func (h *ProcessHost) SpawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Spawned)
}

func (h *ProcessHost) record(call string) {
	h.mu.Lock()
	h.Calls = append(h.Calls, call)
	h.mu.Unlock()
}
