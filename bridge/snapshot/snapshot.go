// Package snapshot records the answers of a bridge and replays them
// later without a Python runtime.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/refaktor/pybindgen/bridge"
)

// FormatVersion is incremented on incompatible changes of [Snapshot].
const FormatVersion = 1

// Failure is a recorded error.
type Failure struct {
	Message string `json:"message"`
	// Import is set for import errors.
	Import *bridge.ImportError `json:"import,omitempty"`
}

func failure(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Message: err.Error()}
	var ie *bridge.ImportError
	if errors.As(err, &ie) {
		f.Import = &bridge.ImportError{Path: ie.Path, Reason: ie.Reason}
	}
	return f
}

func (f *Failure) err() error {
	if f == nil {
		return nil
	}
	if f.Import != nil {
		return &bridge.ImportError{Path: f.Import.Path, Reason: f.Import.Reason}
	}
	return errors.New(f.Message)
}

type ImportResult struct {
	Handle bridge.Handle `json:"handle"`
	Fail   *Failure      `json:"fail,omitempty"`
}

type MembersResult struct {
	Members []bridge.Member `json:"members"`
	Fail    *Failure        `json:"fail,omitempty"`
}

type DescribeResult struct {
	Desc *bridge.RawDescriptor `json:"desc,omitempty"`
	Fail *Failure              `json:"fail,omitempty"`
}

// Snapshot holds every answer a bridge gave, keyed by the bridge's own
// handles.
type Snapshot struct {
	Format    int                              `json:"format"`
	Imports   map[string]ImportResult          `json:"imports"`
	Members   map[bridge.Handle]MembersResult  `json:"members"`
	Describes map[bridge.Handle]DescribeResult `json:"describes"`
}

func New() *Snapshot {
	return &Snapshot{
		Format:    FormatVersion,
		Imports:   map[string]ImportResult{},
		Members:   map[bridge.Handle]MembersResult{},
		Describes: map[bridge.Handle]DescribeResult{},
	}
}

type codec int

const (
	codecJSON codec = iota
	codecMsgpack
)

func codecFor(path string) (codec, error) {
	switch filepath.Ext(path) {
	case ".json":
		return codecJSON, nil
	case ".msgpack", ".mp":
		return codecMsgpack, nil
	}
	return 0, fmt.Errorf("snapshot %v: unknown extension, expected .json or .msgpack", path)
}

// marshal encodes s. Struct fields use their json names in both formats.
func (s *Snapshot) marshal(c codec) ([]byte, error) {
	if c == codecJSON {
		return json.MarshalIndent(s, "", "  ")
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(c codec, data []byte) (*Snapshot, error) {
	s := New()
	if c == codecJSON {
		if err := json.Unmarshal(data, s); err != nil {
			return nil, err
		}
	} else {
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(s); err != nil {
			return nil, err
		}
	}
	if s.Format != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format %v", s.Format)
	}
	return s, nil
}

// Save writes s to path. The format is chosen by the extension: .json or
// .msgpack.
func (s *Snapshot) Save(path string) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	data, err := s.marshal(c)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a snapshot written by [Snapshot.Save].
func Load(path string) (*Snapshot, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := unmarshal(c, data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %v: %w", path, err)
	}
	return s, nil
}

// Recorder is a bridge recording the answers of the bridge it wraps.
type Recorder struct {
	b       bridge.Bridge
	runtime sync.Mutex
	mu      sync.Mutex
	s       *Snapshot
}

func NewRecorder(b bridge.Bridge) *Recorder {
	return &Recorder{b: b, s: New()}
}

func (r *Recorder) Import(path string) (bridge.Handle, error) {
	h, err := r.b.Import(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Imports[path] = ImportResult{Handle: h, Fail: failure(err)}
	return h, err
}

func (r *Recorder) MembersOf(h bridge.Handle) ([]bridge.Member, error) {
	members, err := r.b.MembersOf(h)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Members[h] = MembersResult{Members: members, Fail: failure(err)}
	return members, err
}

func (r *Recorder) Describe(h bridge.Handle) (*bridge.RawDescriptor, error) {
	desc, err := r.b.Describe(h)
	r.mu.Lock()
	defer r.mu.Unlock()
	res := DescribeResult{Fail: failure(err)}
	if desc != nil {
		d := *desc
		res.Desc = &d
	}
	r.s.Describes[h] = res
	return desc, err
}

// RuntimeLock shares the lock of the wrapped runtime.
func (r *Recorder) RuntimeLock() sync.Locker {
	if rl, ok := r.b.(bridge.RuntimeLocker); ok {
		return rl.RuntimeLock()
	}
	return &r.runtime
}

// Snapshot returns the answers recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

// Replay is a bridge answering from a snapshot.
type Replay struct {
	s       *Snapshot
	runtime sync.Mutex
}

// RuntimeLock implements [bridge.RuntimeLocker].
func (r *Replay) RuntimeLock() sync.Locker {
	return &r.runtime
}

func NewReplay(s *Snapshot) *Replay {
	return &Replay{s: s}
}

func (r *Replay) Import(path string) (bridge.Handle, error) {
	res, ok := r.s.Imports[path]
	if !ok {
		return 0, &bridge.ImportError{Path: path, Reason: "not in snapshot"}
	}
	return res.Handle, res.Fail.err()
}

func (r *Replay) MembersOf(h bridge.Handle) ([]bridge.Member, error) {
	res, ok := r.s.Members[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnknownHandle, h)
	}
	return append([]bridge.Member(nil), res.Members...), res.Fail.err()
}

func (r *Replay) Describe(h bridge.Handle) (*bridge.RawDescriptor, error) {
	res, ok := r.s.Describes[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnknownHandle, h)
	}
	if err := res.Fail.err(); err != nil {
		return nil, err
	}
	if res.Desc == nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnknownHandle, h)
	}
	d := *res.Desc
	return &d, nil
}
