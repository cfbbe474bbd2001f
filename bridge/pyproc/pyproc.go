// Package pyproc implements a bridge backed by a CPython subprocess.
//
// The subprocess runs an embedded helper script and answers requests
// over a JSON-lines protocol on its stdin and stdout. Handles are
// indices into a table kept by the helper, so they stay valid for the
// lifetime of the process.
package pyproc

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/refaktor/pybindgen/bridge"
)

//go:embed bridge.py
var helperScript string

// MinVersion is the oldest supported Python version.
const MinVersion = "v3.8.0"

type Options struct {
	// Python is the interpreter to run. Defaults to "python3".
	Python string
	// Paths are prepended to the module search path.
	Paths []string
	// Additional env vars.
	Env []string
	// Dir is the working directory of the interpreter.
	Dir string
	// QuietStdout discards what imported modules print to stdout. It
	// is never mixed into the protocol stream either way.
	QuietStdout bool
	// QuietStderr discards the interpreter's stderr.
	QuietStderr bool
	// Stderr receives the interpreter's stderr unless QuietStderr is
	// set. Defaults to os.Stderr.
	Stderr io.Writer
}

// Process is a running interpreter. It implements [bridge.Bridge] and
// is safe for concurrent use.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	version string

	runtime sync.Mutex
	mu      sync.Mutex
	nextID  uint64
	closed  bool
	err     error
}

type request struct {
	ID     uint64        `json:"id"`
	Op     string        `json:"op"`
	Path   string        `json:"path,omitempty"`
	Handle bridge.Handle `json:"handle,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
		Import  bool   `json:"import"`
	} `json:"error"`
}

// Start launches the interpreter and checks its version.
func Start(ctx context.Context, opts Options) (*Process, error) {
	python := opts.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", "-c", helperScript}
	if opts.QuietStdout {
		args = append(args, "--quiet-stdout")
	}
	if opts.QuietStderr {
		args = append(args, "--quiet-stderr")
	}
	cmd := exec.CommandContext(ctx, python, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1")
	if len(opts.Paths) > 0 {
		paths := strings.Join(opts.Paths, string(filepath.ListSeparator))
		if prev := os.Getenv("PYTHONPATH"); prev != "" {
			paths += string(filepath.ListSeparator) + prev
		}
		cmd.Env = append(cmd.Env, "PYTHONPATH="+paths)
	}
	cmd.Env = append(cmd.Env, opts.Env...)
	if !opts.QuietStderr {
		cmd.Stderr = opts.Stderr
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %v: %w", python, err)
	}
	p := &Process{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}

	if err := p.call(request{Op: "version"}, &p.version); err != nil {
		p.Close()
		return nil, fmt.Errorf("%v: %w", python, err)
	}
	if v := "v" + p.version; !semver.IsValid(v) || semver.Compare(v, MinVersion) < 0 {
		p.Close()
		return nil, fmt.Errorf("%v: Python %v is not supported, need at least %v", python, p.version, strings.TrimPrefix(MinVersion, "v"))
	}
	return p, nil
}

// Version returns the interpreter's version, e.g. "3.12.1".
func (p *Process) Version() string {
	return p.version
}

// call sends req and decodes the result into res.
func (p *Process) call(req request, res any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return bridge.ErrClosed
	}
	if p.err != nil {
		return p.err
	}

	p.nextID++
	req.ID = p.nextID
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		p.err = fmt.Errorf("write request: %w", err)
		return p.err
	}
	line, err := p.stdout.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("interpreter exited")
		}
		p.err = fmt.Errorf("read response: %w", err)
		return p.err
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		p.err = fmt.Errorf("decode response: %w", err)
		return p.err
	}
	if resp.ID != req.ID {
		p.err = fmt.Errorf("response id %v does not match request id %v", resp.ID, req.ID)
		return p.err
	}
	if resp.Error != nil {
		if resp.Error.Import {
			return &bridge.ImportError{Path: req.Path, Reason: resp.Error.Message}
		}
		return errors.New(resp.Error.Message)
	}
	return json.Unmarshal(resp.Result, res)
}

func (p *Process) Import(path string) (bridge.Handle, error) {
	var h bridge.Handle
	err := p.call(request{Op: "import", Path: path}, &h)
	return h, err
}

func (p *Process) MembersOf(h bridge.Handle) ([]bridge.Member, error) {
	var members []bridge.Member
	err := p.call(request{Op: "members", Handle: h}, &members)
	return members, err
}

func (p *Process) Describe(h bridge.Handle) (*bridge.RawDescriptor, error) {
	var desc bridge.RawDescriptor
	if err := p.call(request{Op: "describe", Handle: h}, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// RuntimeLock returns the lock guarding the interpreter.
func (p *Process) RuntimeLock() sync.Locker {
	return &p.runtime
}

// Close stops the interpreter and waits for it to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stdin.Close()
	return p.cmd.Wait()
}
