package daemon

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

const stateDirPrefix = "vulnscan-engine"

// OSHost spawns real processes
type OSHost struct{}

// NewOSHost process host
func NewOSHost() *OSHost {
	return &OSHost{}
}

// Spawn starts the process. It is not bound to ctx, the supervisor owns its lifetime.
func (h *OSHost) Spawn(ctx context.Context, spec *vscan.ProcessSpec) (vscan.ManagedProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &osProcess{exited: make(chan struct{})}
	p.cmd = exec.Command(spec.Command, spec.Args...)
	p.cmd.Dir = spec.Dir
	p.cmd.Stdout = &p.output
	p.cmd.Stderr = &p.output

	if err := p.cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		err := p.cmd.Wait()
		log.Info().Int("pid", p.cmd.Process.Pid).Err(err).Msg("engine process exited")
		close(p.exited)
	}()
	return p, nil
}

// Find processes whose command line matches the regexp match, never including
// ourselves or the process that started us
func (h *OSHost) Find(match string) ([]int, error) {
	re, err := regexp.Compile(match)
	if err != nil {
		return nil, errors.Wrap(err, "invalid process match")
	}

	lister := ListProcesses()
	if lister[0] == "" {
		return nil, errors.New("process discovery unsupported on this OS")
	}
	output, err := exec.Command(lister[0], lister[1:]...).Output()
	if err != nil {
		return nil, errors.Wrapf(err, "running %s", lister[0])
	}
	return matchPIDs(re, output), nil
}

func matchPIDs(re *regexp.Regexp, output []byte) []int {
	self, parent := os.Getpid(), os.Getppid()
	pids := make([]int, 0)

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		sep := strings.IndexAny(line, " \t")
		if sep < 0 {
			continue
		}
		pid, err := strconv.Atoi(line[:sep])
		if err != nil || pid == self || pid == parent {
			continue
		}
		if re.MatchString(strings.TrimSpace(line[sep:])) {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Terminate a process with a vengeance
func (h *OSHost) Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// NewStateDir creates a fresh engine state directory under tmp
func NewStateDir(tmp string) (string, error) {
	dir, err := ioutil.TempDir(tmp, stateDirPrefix)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", errors.New("state directory returned empty which could delete system files on cleanup")
	}
	return dir, nil
}

// RemoveTmpContents that previous engines left behind in tmp
func RemoveTmpContents(tmp string) error {
	if tmp == "" {
		tmp = os.TempDir()
	}
	files, err := filepath.Glob(filepath.Join(tmp, stateDirPrefix+"*"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.RemoveAll(file); err != nil {
			return err
		}
	}
	return nil
}

type osProcess struct {
	cmd    *exec.Cmd
	output lockedBuffer
	exited chan struct{}
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Exited() <-chan struct{} {
	return p.exited
}

func (p *osProcess) Output() string {
	return p.output.String()
}

func (p *osProcess) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
