package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSignature(t *testing.T) {
	require := require.New(t)

	sig, err := ParseSignature(`(a, b: int = 3, /, c: dict[str, tuple[int, int]] = {'x': (1, 2)}, *args: str, d, e=None, **kw) -> list[int]`)
	require.NoError(err)
	require.Equal("list[int]", sig.Return)
	require.Equal([]Param{
		{Name: "a", Kind: ParamPositionalOnly},
		{Name: "b", Kind: ParamPositionalOnly, Annotation: "int", HasDefault: true},
		{Name: "c", Kind: ParamPositionalOrKeyword, Annotation: "dict[str, tuple[int, int]]", HasDefault: true},
		{Name: "args", Kind: ParamVarPositional, Annotation: "str"},
		{Name: "d", Kind: ParamKeywordOnly},
		{Name: "e", Kind: ParamKeywordOnly, HasDefault: true},
		{Name: "kw", Kind: ParamVarKeyword},
	}, sig.Params)
}

func TestParseSignatureBareStar(t *testing.T) {
	require := require.New(t)

	sig, err := ParseSignature(`($self, x, *, flag: bool = x == 1)`)
	require.NoError(err)
	require.Equal("", sig.Return)
	require.Len(sig.Params, 3)
	require.Equal("self", sig.Params[0].Name)
	require.Equal(Param{Name: "flag", Kind: ParamKeywordOnly, Annotation: "bool", HasDefault: true}, sig.Params[2])
}

func TestParseSignatureEmpty(t *testing.T) {
	require := require.New(t)

	sig, err := ParseSignature("()")
	require.NoError(err)
	require.Empty(sig.Params)
}

func TestParseSignatureMalformed(t *testing.T) {
	for _, text := range []string{"", "a, b", "(a, b", "(a) junk", "(a, : int)"} {
		_, err := ParseSignature(text)
		require.Error(t, err, text)
	}
}

func TestKindText(t *testing.T) {
	require := require.New(t)

	d := &RawDescriptor{
		Kind:      KindFunction,
		Name:      "answer",
		Module:    "demo",
		Signature: &Signature{Params: []Param{{Name: "q", Kind: ParamKeywordOnly}}},
		Value:     &Value{Kind: LiteralStr, Text: "x"},
	}
	data, err := json.Marshal(d)
	require.NoError(err)
	require.Contains(string(data), `"kind":"function"`)
	require.Contains(string(data), `"kind":"keyword_only"`)

	var got RawDescriptor
	require.NoError(json.Unmarshal(data, &got))
	require.Equal(d, &got)

	var k Kind
	require.NoError(k.UnmarshalText([]byte("something-new")))
	require.Equal(KindOther, k)
}

func TestRawDescriptorPath(t *testing.T) {
	require := require.New(t)

	require.Equal("demo.sub", (&RawDescriptor{Kind: KindModule, Name: "sub", Module: "demo.sub"}).Path())
	require.Equal("demo.Config.load", (&RawDescriptor{Kind: KindMethod, Name: "load", Module: "demo", QualName: "Config.load"}).Path())
	require.Equal("answer", (&RawDescriptor{Kind: KindFunction, Name: "answer"}).Path())

	require.False((&RawDescriptor{Doc: " None "}).HasDoc())
	require.False((&RawDescriptor{Doc: "\n"}).HasDoc())
	require.True((&RawDescriptor{Doc: "Returns x."}).HasDoc())
}

type slowBridge struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (b *slowBridge) enter() func() {
	n := b.active.Add(1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { b.active.Add(-1) }
}

func (b *slowBridge) Import(path string) (Handle, error) {
	defer b.enter()()
	return 1, nil
}

func (b *slowBridge) MembersOf(h Handle) ([]Member, error) {
	defer b.enter()()
	return nil, nil
}

func (b *slowBridge) Describe(h Handle) (*RawDescriptor, error) {
	defer b.enter()()
	panic("describe exploded")
}

func TestExclusiveSerializes(t *testing.T) {
	require := require.New(t)

	rt := &slowBridge{}
	// Two independent wrappers of the same runtime.
	a, b := Exclusive(rt), Exclusive(rt)
	require.Same(a, Exclusive(a))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			br := a
			if i%2 == 1 {
				br = b
			}
			_, _ = br.Import("demo")
			_, _ = br.MembersOf(1)
		}()
	}
	wg.Wait()
	require.EqualValues(1, rt.maxSeen.Load())
}

// sliceBridge is not comparable, so its wrappers can't be matched up by
// value.
type sliceBridge struct {
	*slowBridge
	_ []string
}

func TestExclusiveNotComparable(t *testing.T) {
	require := require.New(t)

	rt := &slowBridge{}
	a, b := Exclusive(sliceBridge{slowBridge: rt}), Exclusive(sliceBridge{slowBridge: rt})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			br := a
			if i%2 == 1 {
				br = b
			}
			_, _ = br.Import("demo")
		}()
	}
	wg.Wait()
	require.EqualValues(1, rt.maxSeen.Load())
}

func TestExclusiveReleasesOnPanic(t *testing.T) {
	require := require.New(t)

	br := Exclusive(&slowBridge{})
	require.Panics(func() { _, _ = br.Describe(1) })

	done := make(chan struct{})
	go func() {
		_, _ = br.Import("demo")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released after panic")
	}
}

func TestImportError(t *testing.T) {
	require := require.New(t)

	err := error(&ImportError{Path: "demo", Reason: "No module named 'demo'"})
	require.True(IsImportError(err))
	require.EqualError(err, "import demo: No module named 'demo'")
}
