package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/bridgetest"
	"github.com/refaktor/pybindgen/introspect"
)

func fake() *bridgetest.Fake {
	f := bridgetest.New()
	demo := f.Module("demo", "Demo module.")
	demo.Function("answer", "(question: str, *, strict: bool = False) -> int", "Returns answer to question.")
	demo.Constant("VERSION", bridge.Value{Kind: bridge.LiteralStr, Text: "1.2.3"}, "")
	cfg := demo.Class("Config", "Configuration.", "demo.Base")
	cfg.Property("timeout", "int", true, "")
	cfg.Method("load", bridge.BindingStatic, "(path: str) -> Config", "")
	demo.Submodule("util", "").Function("helper", "", "")
	f.FailImport("broken", "No module named 'broken'")
	return f
}

func TestRecordReplay(t *testing.T) {
	for _, ext := range []string{".json", ".msgpack"} {
		t.Run(ext, func(t *testing.T) {
			require := require.New(t)

			rec := NewRecorder(fake())
			want, err := introspect.Walk(rec, []string{"demo"}, introspect.Options{Recurse: true})
			require.NoError(err)

			path := filepath.Join(t.TempDir(), "demo"+ext)
			require.NoError(rec.Snapshot().Save(path))
			s, err := Load(path)
			require.NoError(err)

			got, err := introspect.Walk(NewReplay(s), []string{"demo"}, introspect.Options{Recurse: true})
			require.NoError(err)
			require.Equal(want.Modules, got.Modules)
			require.Equal(want.Diagnostics, got.Diagnostics)
			require.Equal(len(want.Items), len(got.Items))
			for i := range want.Items {
				require.Equal(want.Items[i].Path, got.Items[i].Path)
				require.Equal(*want.Items[i].Desc, *got.Items[i].Desc)
			}
		})
	}
}

func TestReplayImportError(t *testing.T) {
	require := require.New(t)

	rec := NewRecorder(fake())
	_, err := rec.Import("broken")
	require.True(bridge.IsImportError(err))

	replay := NewReplay(rec.Snapshot())
	_, err = replay.Import("broken")
	require.True(bridge.IsImportError(err))
	require.Contains(err.Error(), "No module named 'broken'")

	_, err = replay.Import("never.seen")
	require.True(bridge.IsImportError(err))

	_, err = replay.Describe(12345)
	require.ErrorIs(err, bridge.ErrUnknownHandle)
}

func TestSaveUnknownExtension(t *testing.T) {
	require.Error(t, New().Save(filepath.Join(t.TempDir(), "x.yaml")))
	_, err := Load("x.txt")
	require.Error(t, err)
}
