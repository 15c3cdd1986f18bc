package fs_test

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacchi/nodemux"
	"github.com/yacchi/nodemux/mutest"
	"github.com/yacchi/nodemux/native"
	"github.com/yacchi/nodemux/source/fs"
)

const waitTimeout = 5 * time.Second
const tick = 10 * time.Millisecond

// collector gathers delivered batches.
type collector struct {
	mu      sync.Mutex
	records []native.Record[string]
}

func (c *collector) deliver(records []native.Record[string]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

func (c *collector) find(kind native.Kind, name string) (native.Record[string], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Kind == kind && r.Name == name {
			return r, true
		}
	}
	return native.Record[string]{}, false
}

func (c *collector) any(kind native.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

func (c *collector) waitFor(t *testing.T, kind native.Kind, name string) native.Record[string] {
	t.Helper()
	var rec native.Record[string]
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = c.find(kind, name)
		return ok
	}, waitTimeout, tick, "no %s record for %s", kind, name)
	return rec
}

func openHandle(t *testing.T, opts ...fs.Option) (*fs.Handle, *collector) {
	t.Helper()
	c := &collector{}
	h, err := fs.Open(c.deliver, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, c
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestHandle_ChildList(t *testing.T) {
	h, c := openHandle(t)
	dir := t.TempDir()
	require.NoError(t, h.Start(dir, native.Options{ChildList: true}))

	file := filepath.Join(dir, "a.txt")
	touch(t, file)
	rec := c.waitFor(t, native.KindChildList, file)
	assert.Equal(t, dir, rec.Target)

	require.NoError(t, os.Remove(file))
	c.waitFor(t, native.KindChildList, file)
}

func TestHandle_FiltersUnwantedKinds(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	touch(t, existing)

	h, c := openHandle(t)
	require.NoError(t, h.Start(dir, native.Options{ChildList: true}))

	require.NoError(t, os.WriteFile(existing, []byte("changed"), 0o644))
	marker := filepath.Join(dir, "marker")
	touch(t, marker)
	c.waitFor(t, native.KindChildList, marker)

	assert.False(t, c.any(native.KindCharacterData), "content changes were not requested")
}

func TestHandle_FileContentAndAttributes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("chmod events are not reliable on windows")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	touch(t, file)

	h, c := openHandle(t)
	require.NoError(t, h.Start(file, native.Options{Attributes: true, CharacterData: true}))

	require.NoError(t, os.WriteFile(file, []byte("new content"), 0o644))
	rec := c.waitFor(t, native.KindCharacterData, file)
	assert.Equal(t, file, rec.Target)

	require.NoError(t, os.Chmod(file, 0o600))
	rec = c.waitFor(t, native.KindAttributes, file)
	assert.Equal(t, fs.AttributeMode, rec.Attribute)
}

func TestHandle_Subtree(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	h, c := openHandle(t)
	require.NoError(t, h.Start(dir, native.Options{ChildList: true, Subtree: true}))

	deep := filepath.Join(sub, "deep.txt")
	touch(t, deep)
	rec := c.waitFor(t, native.KindChildList, deep)
	assert.Equal(t, dir, rec.Target, "descendant records carry the observed root")

	// Directories created later are followed.
	later := filepath.Join(dir, "later")
	require.NoError(t, os.Mkdir(later, 0o755))
	c.waitFor(t, native.KindChildList, later)

	inLater := filepath.Join(later, "x.txt")
	touch(t, inLater)
	c.waitFor(t, native.KindChildList, inLater)
}

func TestHandle_NoSubtree(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	h, c := openHandle(t)
	require.NoError(t, h.Start(dir, native.Options{ChildList: true}))

	deep := filepath.Join(sub, "deep.txt")
	touch(t, deep)
	marker := filepath.Join(dir, "marker")
	touch(t, marker)
	c.waitFor(t, native.KindChildList, marker)

	_, found := c.find(native.KindChildList, deep)
	assert.False(t, found, "descendants are reported only with Subtree")
}

func TestHandle_StopAllAndRestart(t *testing.T) {
	h, c := openHandle(t)
	a, b := t.TempDir(), t.TempDir()
	require.NoError(t, h.Start(a, native.Options{ChildList: true}))
	require.NoError(t, h.Start(b, native.Options{ChildList: true}))

	require.NoError(t, h.StopAll())
	require.NoError(t, h.Start(b, native.Options{ChildList: true}))

	inA := filepath.Join(a, "ignored")
	touch(t, inA)
	inB := filepath.Join(b, "seen")
	touch(t, inB)
	c.waitFor(t, native.KindChildList, inB)

	_, found := c.find(native.KindChildList, inA)
	assert.False(t, found, "stopped target still reported")
}

func TestHandle_StartErrors(t *testing.T) {
	h, _ := openHandle(t)

	err := h.Start(filepath.Join(t.TempDir(), "missing"), native.Options{ChildList: true})
	assert.Error(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Start(t.TempDir(), native.Options{ChildList: true}), fs.ErrClosed)
	assert.NoError(t, h.StopAll())
}

func TestHandle_WithMultiplexer(t *testing.T) {
	mux := nodemux.New(fs.Opener(fs.WithBatchSize(8)), nodemux.WithDiagnosticHandler(nil))
	require.True(t, mux.IsEnabled())
	t.Cleanup(func() { _ = mux.Close() })

	dirA, dirB := t.TempDir(), t.TempDir()
	var gotA, gotB mutest.Recorder[string]
	la := nodemux.NewListener(gotA.Func)
	lb := nodemux.NewListener(gotB.Func)
	mux.Observe(dirA, la)
	mux.Observe(dirB, lb)

	touch(t, filepath.Join(dirA, "one"))
	require.Eventually(t, func() bool { return gotA.Len() > 0 }, waitTimeout, tick)

	// Removing A must keep B observed through the reconcile.
	mux.Unobserve(dirA, la)
	gotA.Reset()

	touch(t, filepath.Join(dirB, "two"))
	require.Eventually(t, func() bool { return gotB.Len() > 0 }, waitTimeout, tick)

	touch(t, filepath.Join(dirA, "three"))
	marker := filepath.Join(dirB, "marker")
	touch(t, marker)
	require.Eventually(t, func() bool {
		for _, r := range gotB.Records() {
			if r.Name == marker {
				return true
			}
		}
		return false
	}, waitTimeout, tick)
	assert.Equal(t, 0, gotA.Len())
}

func countRecords(records []native.Record[string], kind native.Kind, name string) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind && r.Name == name {
			n++
		}
	}
	return n
}

func TestHandle_DirectoryAndFileThroughMultiplexer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("chmod events are not reliable on windows")
	}
	mux := nodemux.New(fs.Opener(), nodemux.WithDiagnosticHandler(nil))
	t.Cleanup(func() { _ = mux.Close() })

	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	touch(t, file)
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	opts := nodemux.ObserveOptions{ChildList: true, Attributes: true, CharacterData: true}
	var gotDir, gotFile mutest.Recorder[string]
	mux.ObserveWith(dir, nodemux.NewListener(gotDir.Func), opts)
	mux.ObserveWith(file, nodemux.NewListener(gotFile.Func), opts)
	require.Len(t, mux.Targets(), 2)

	_, err = f.Write([]byte("more"))
	require.NoError(t, err)
	require.NoError(t, os.Chmod(file, 0o600))
	marker := filepath.Join(dir, "marker")
	touch(t, marker)

	// Records arrive in event order, so the marker comes last.
	require.Eventually(t, func() bool {
		return countRecords(gotDir.Records(), native.KindChildList, marker) > 0
	}, waitTimeout, tick)

	for name, got := range map[string]*mutest.Recorder[string]{dir: &gotDir, file: &gotFile} {
		records := got.Records()
		assert.Equal(t, 1, countRecords(records, native.KindCharacterData, file), "write seen by %s", name)
		assert.Equal(t, 1, countRecords(records, native.KindAttributes, file), "chmod seen by %s", name)
		for _, r := range records {
			assert.Equal(t, name, r.Target)
		}
	}
	assert.Zero(t, countRecords(gotFile.Records(), native.KindChildList, marker), "siblings are not reported to a file target")
}

func TestHandle_SubdirectoryAttributesReportedOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("chmod events are not reliable on windows")
	}
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	h, c := openHandle(t)
	require.NoError(t, h.Start(dir, native.Options{ChildList: true, Subtree: true, Attributes: true}))

	require.NoError(t, os.Chmod(sub, 0o700))
	marker := filepath.Join(dir, "marker")
	touch(t, marker)
	c.waitFor(t, native.KindChildList, marker)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 1, countRecords(c.records, native.KindAttributes, sub))
}

func TestHandle_InvalidTargetThroughMultiplexer(t *testing.T) {
	var codes []nodemux.DiagnosticCode
	mux := nodemux.New(fs.Opener(), nodemux.WithDiagnosticHandler(func(d nodemux.Diagnostic) {
		codes = append(codes, d.Code)
	}))
	t.Cleanup(func() { _ = mux.Close() })

	mux.Observe(filepath.Join(t.TempDir(), "missing"), nodemux.NewListener(func(nodemux.Record[string]) {}))

	assert.Empty(t, mux.Targets())
	assert.Contains(t, codes, nodemux.DiagnosticStartFailed)
}
