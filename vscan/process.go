package vscan

import "context"

// DaemonState of the engine process
type DaemonState int8

const (
	NotStarted DaemonState = iota
	Launching
	Ready
	ShuttingDown
	Stopped
	Errored
)

// DaemonStateMap for printing
var DaemonStateMap = map[DaemonState]string{
	NotStarted:   "not_started",
	Launching:    "launching",
	Ready:        "ready",
	ShuttingDown: "shutting_down",
	Stopped:      "stopped",
	Errored:      "error",
}

func (s DaemonState) String() string {
	return DaemonStateMap[s]
}

// ManagedProcess is a child process under supervision
type ManagedProcess interface {
	PID() int
	// Exited is closed once the process is no longer running
	Exited() <-chan struct{}
	// Output returns whatever the process wrote to stdout/stderr so far
	Output() string
	Kill() error
}

// ProcessSpec describes how to spawn a process
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
}

// ProcessHost spawns and discovers processes on the host
type ProcessHost interface {
	Spawn(ctx context.Context, spec *ProcessSpec) (ManagedProcess, error)
	// Find returns the PIDs of running processes whose command line matches the regexp match
	Find(match string) ([]int, error)
	Terminate(pid int) error
}

// HealthProber checks if the engine API answers
type HealthProber interface {
	Version(ctx context.Context) (string, error)
}
