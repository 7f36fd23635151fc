// Package daemon supervises the dynamic analysis engine process
package daemon

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

var (
	ErrAlreadyLaunched = errors.New("engine was already launched")
	ErrNotLaunching    = errors.New("engine is not launching")
)

// EngineAPI is the part of the engine api the supervisor needs
type EngineAPI interface {
	vscan.HealthProber
	Shutdown(ctx context.Context) error
}

// Supervisor owns a single engine process for one scan
type Supervisor struct {
	cfg  *vscan.EngineConfig
	host vscan.ProcessHost
	api  EngineAPI

	stateLock sync.RWMutex
	state     vscan.DaemonState
	proc      vscan.ManagedProcess
	stateDir  string
	tempState bool
	released  bool
}

// New supervisor for the engine described by cfg
func New(cfg *vscan.EngineConfig, host vscan.ProcessHost, api EngineAPI) *Supervisor {
	return &Supervisor{cfg: cfg, host: host, api: api, state: vscan.NotStarted}
}

// State of the engine
func (s *Supervisor) State() vscan.DaemonState {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()
	return s.state
}

func (s *Supervisor) setState(state vscan.DaemonState) {
	s.stateLock.Lock()
	from := s.state
	s.state = state
	s.stateLock.Unlock()
	log.Debug().Str("from", from.String()).Str("to", state.String()).Msg("engine state")
}

// Address the engine listens on
func (s *Supervisor) Address() string {
	return s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
}

// PID of the engine process, 0 if not spawned
func (s *Supervisor) PID() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}

// Launch terminates any prior engine instance and spawns a new one. It does not
// wait for the engine to become ready.
func (s *Supervisor) Launch(ctx context.Context) error {
	if s.State() != vscan.NotStarted {
		return ErrAlreadyLaunched
	}
	s.setState(vscan.Launching)

	if err := s.checkInstall(); err != nil {
		s.setState(vscan.Errored)
		return vscan.WithKind(vscan.ErrEngineUnavailable, err)
	}

	s.killPrior(ctx)

	if err := s.prepareStateDir(); err != nil {
		s.setState(vscan.Errored)
		return vscan.WithKind(vscan.ErrEngineUnavailable, errors.Wrap(err, "creating engine state directory"))
	}

	command := s.cfg.Command
	if command == "" {
		command = s.cfg.Artifact
	}
	spec := &vscan.ProcessSpec{
		Command: command,
		Args:    Args(s.cfg, s.stateDir),
		Dir:     s.cfg.WorkDir,
	}

	proc, err := s.host.Spawn(ctx, spec)
	if err != nil {
		s.removeStateDir()
		s.setState(vscan.Errored)
		return vscan.WithKind(vscan.ErrEngineUnavailable, errors.Wrapf(err, "spawning %s", command))
	}
	s.proc = proc
	log.Info().Int("pid", proc.PID()).Str("addr", s.Address()).Str("state_dir", s.stateDir).Msg("engine process started")
	return nil
}

func (s *Supervisor) checkInstall() error {
	if _, err := os.Stat(s.cfg.Artifact); err != nil {
		return errors.Wrapf(err, "engine not found at expected install location %s", s.cfg.Artifact)
	}
	if s.cfg.Command != "" {
		if _, err := exec.LookPath(s.cfg.Command); err != nil {
			return errors.Wrapf(err, "engine launcher %s not found", s.cfg.Command)
		}
	}
	return nil
}

// killPrior force terminates running instances, failures are only logged
func (s *Supervisor) killPrior(ctx context.Context) {
	match := MatchPattern(s.cfg)
	if match == "" {
		return
	}

	pids, err := s.host.Find(match)
	if err != nil {
		log.Warn().Err(err).Msg("unable to look for prior engine instances")
		return
	}
	if len(pids) == 0 {
		return
	}

	for _, pid := range pids {
		log.Warn().Int("pid", pid).Msg("terminating prior engine instance")
		if err := s.host.Terminate(pid); err != nil {
			log.Warn().Err(err).Int("pid", pid).Msg("failed to terminate prior engine instance")
		}
	}

	if s.cfg.StateDir == "" {
		if err := RemoveTmpContents(""); err != nil {
			log.Warn().Err(err).Msg("failed to remove stale engine state")
		}
	}

	// give the port a moment to free up
	select {
	case <-time.After(s.cfg.StartupGrace):
	case <-ctx.Done():
	}
}

func (s *Supervisor) prepareStateDir() error {
	if s.cfg.StateDir != "" {
		s.stateDir = s.cfg.StateDir
		return os.MkdirAll(s.stateDir, 0700)
	}

	dir, err := NewStateDir("")
	if err != nil {
		return err
	}
	s.stateDir = dir
	s.tempState = true
	return nil
}

func (s *Supervisor) removeStateDir() {
	if !s.tempState || s.stateDir == "" {
		return
	}
	if err := os.RemoveAll(s.stateDir); err != nil {
		log.Warn().Err(err).Str("dir", s.stateDir).Msg("failed to remove engine state directory")
	}
	s.stateDir = ""
}

// AwaitReady waits out the startup grace period then polls the engine's version
// until it answers or ReadyTimeout elapses. The engine is never reported ready
// once its process has exited.
func (s *Supervisor) AwaitReady(ctx context.Context) error {
	if s.State() != vscan.Launching || s.proc == nil {
		return ErrNotLaunching
	}

	select {
	case <-s.proc.Exited():
		return s.fail(vscan.ErrEngineReadinessTimeout, errors.Errorf("engine exited during startup: %s", s.proc.Output()))
	case <-ctx.Done():
		return s.fail(vscan.ErrScanAborted, ctx.Err())
	case <-time.After(s.cfg.StartupGrace):
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.ReadyInterval)
	defer ticker.Stop()

	for {
		version, err := s.probe(readyCtx)
		if s.exited() {
			return s.fail(vscan.ErrEngineReadinessTimeout, errors.Errorf("engine exited before becoming ready: %s", s.proc.Output()))
		}
		if err == nil {
			s.setState(vscan.Ready)
			log.Info().Str("version", version).Str("addr", s.Address()).Msg("engine ready")
			return nil
		}
		log.Debug().Err(err).Msg("waiting for engine")

		select {
		case <-s.proc.Exited():
			return s.fail(vscan.ErrEngineReadinessTimeout, errors.Errorf("engine exited before becoming ready: %s", s.proc.Output()))
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return s.fail(vscan.ErrScanAborted, ctx.Err())
			}
			return s.fail(vscan.ErrEngineReadinessTimeout, errors.Errorf("engine not ready after %s", s.cfg.ReadyTimeout))
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) probe(ctx context.Context) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyInterval)
	defer cancel()
	return s.api.Version(probeCtx)
}

func (s *Supervisor) exited() bool {
	select {
	case <-s.proc.Exited():
		return true
	default:
		return false
	}
}

func (s *Supervisor) fail(kind, cause error) error {
	s.setState(vscan.Errored)
	log.Error().Err(cause).Msg("engine failed to become ready")
	return vscan.WithKind(kind, cause)
}

// Shutdown asks the engine to exit, killing it if it does not in time, and removes
// temporary state. Failures are logged and swallowed. Safe to call more than once.
// An engine in the Errored state is cleaned up but stays Errored.
func (s *Supervisor) Shutdown() {
	s.stateLock.Lock()
	if s.released {
		s.stateLock.Unlock()
		return
	}
	s.released = true
	errored := s.state == vscan.Errored
	s.stateLock.Unlock()

	if s.proc == nil {
		if !errored {
			s.setState(vscan.Stopped)
		}
		return
	}
	if !errored {
		s.setState(vscan.ShuttingDown)
	}

	if !s.exited() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := s.api.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("engine shutdown request failed, killing")
			s.kill()
		} else {
			select {
			case <-s.proc.Exited():
			case <-ctx.Done():
				log.Warn().Int("pid", s.proc.PID()).Msg("engine did not exit in time, killing")
				s.kill()
			}
		}
		cancel()
	}

	s.removeStateDir()
	if !errored {
		s.setState(vscan.Stopped)
	}
	log.Info().Int("pid", s.proc.PID()).Msg("engine released")
}

func (s *Supervisor) kill() {
	if err := s.proc.Kill(); err != nil {
		log.Warn().Err(err).Msg("failed to kill engine")
	}
}
