package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/pyproc"
	"github.com/refaktor/pybindgen/bridge/pystub"
	"github.com/refaktor/pybindgen/bridge/snapshot"
	"github.com/refaktor/pybindgen/config"
)

// session is an open bridge plus what has to happen once it's done.
type session struct {
	bridge.Bridge
	rec        *snapshot.Recorder
	recordPath string
	proc       *pyproc.Process
}

// openSession opens the bridge selected by c. A snapshot in c replaces
// the runtime entirely. If record is set, every response is recorded
// and saved there by close.
func openSession(ctx context.Context, c *config.Config, record string) (*session, error) {
	s := &session{recordPath: record}
	switch {
	case c.Snapshot != "":
		snap, err := snapshot.Load(c.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		s.Bridge = snapshot.NewReplay(snap)
	case c.Bridge == config.BridgeStub:
		s.Bridge = pystub.New(c.StubPaths...)
	default:
		proc, err := pyproc.Start(ctx, pyproc.Options{
			Python:      c.Python,
			Paths:       c.StubPaths,
			QuietStdout: true,
			Stderr:      os.Stderr,
		})
		if err != nil {
			return nil, err
		}
		s.proc = proc
		s.Bridge = proc
	}
	if record != "" {
		s.rec = snapshot.NewRecorder(s.Bridge)
		s.Bridge = s.rec
	}
	return s, nil
}

// close saves the recording, if any, and stops the interpreter.
func (s *session) close(save bool) error {
	var errs *multierror.Error
	if s.rec != nil && save {
		if err := s.rec.Snapshot().Save(s.recordPath); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("save snapshot: %w", err))
		}
	}
	if s.proc != nil {
		if err := s.proc.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stop python: %w", err))
		}
	}
	return errs.ErrorOrNil()
}
