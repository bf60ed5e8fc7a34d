package spout

// The dispatcher is a process-wide singleton, so every test configures it in
// dynamic mode and uses its own temp paths; each Setup hot-swaps the previous
// test's sinks out.

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoutlog/spout/pkg/rotation"
)

func msgFormat() Format {
	return Format{
		TimeLayout: "15:04:05",
		Fn:         func(r FormatRecord) string { return r.Level() + " " + r.Msg() + "\n" },
	}
}

func fileSetup(t *testing.T, level Level) (*Handle, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	h, err := NewBuilder().Test().
		File(FileConfig{Path: path, Level: level, Format: msgFormat()}).
		Setup()
	require.NoError(t, err)
	return h, path
}

func TestSetupAndLog(t *testing.T) {
	h, path := fileSetup(t, LevelDebug)

	Infof("hello %s", "world")
	Errorf("broke")
	h.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO hello world\nERROR broke\n", string(data))
}

func TestSetupIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	build := func() *Builder {
		return NewBuilder().Test().
			File(FileConfig{Path: path, Level: LevelInfo, Format: msgFormat()})
	}

	h1, err := build().Setup()
	require.NoError(t, err)
	h2, err := build().Setup()
	require.NoError(t, err)
	assert.Equal(t, h1.Checksum(), h2.Checksum())

	active, ok := ActiveHandle()
	require.True(t, ok)
	assert.Equal(t, h1.Checksum(), active.Checksum())
}

func TestChecksumSensitivity(t *testing.T) {
	base := func() *Builder {
		return NewBuilder().Test().
			File(FileConfig{Path: "/tmp/a.log", Level: LevelInfo}).
			Console(ConsoleConfig{Level: LevelWarn})
	}
	ref := base().Checksum()
	assert.Equal(t, ref, base().Checksum(), "identical configs hash identically")

	changedPath := NewBuilder().Test().
		File(FileConfig{Path: "/tmp/b.log", Level: LevelInfo}).
		Console(ConsoleConfig{Level: LevelWarn})
	assert.NotEqual(t, ref, changedPath.Checksum())

	changedLevel := NewBuilder().Test().
		File(FileConfig{Path: "/tmp/a.log", Level: LevelDebug}).
		Console(ConsoleConfig{Level: LevelWarn})
	assert.NotEqual(t, ref, changedLevel.Checksum())

	reordered := NewBuilder().Test().
		Console(ConsoleConfig{Level: LevelWarn}).
		File(FileConfig{Path: "/tmp/a.log", Level: LevelInfo})
	assert.NotEqual(t, ref, reordered.Checksum(), "sink order is part of the identity")
}

func TestImmutableRejectsChange(t *testing.T) {
	_, _ = fileSetup(t, LevelInfo)

	frozen := NewBuilder().
		File(FileConfig{Path: filepath.Join(t.TempDir(), "other.log"), Level: LevelInfo})
	_, err := frozen.Setup()
	assert.ErrorIs(t, err, ErrConfigChanged)
}

func TestDynamicSwap(t *testing.T) {
	_, path1 := fileSetup(t, LevelDebug)
	Infof("first config")

	_, path2 := fileSetup(t, LevelDebug)
	Infof("second config")
	Flush()

	one, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Equal(t, "INFO first config\n", string(one), "old sinks were flushed before closing")

	two, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, "INFO second config\n", string(two))
}

func TestSetupFailureLeavesStateAlone(t *testing.T) {
	h, path := fileSetup(t, LevelInfo)
	before := h.Checksum()

	_, err := NewBuilder().Test().
		Syslog(SyslogConfig{Network: "unixgram", Address: filepath.Join(t.TempDir(), "absent.sock")}).
		Setup()
	require.Error(t, err)

	// The failed setup changed nothing; logging still reaches the old sink.
	active, ok := ActiveHandle()
	require.True(t, ok)
	assert.Equal(t, before, active.Checksum())
	Infof("still here")
	Flush()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still here")
}

func TestLevelEarlyOut(t *testing.T) {
	_, path := fileSetup(t, LevelWarn)

	Debugf("too verbose")
	Tracef("way too verbose")
	Warnf("just right")
	Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN just right\n", string(data))
}

func TestConcurrentLogging(t *testing.T) {
	h, path := fileSetup(t, LevelDebug)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				Infof("g%d-%d", g, i)
			}
		}(g)
	}
	wg.Wait()
	h.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Regexp(t, `^INFO g\d-\d+$`, line)
	}
}

// TestSignalListener exercises the listener end to end: exactly one listener
// for the process, reopen driven by a delivered signal, and a diagnostic when
// a later configuration asks for signals again.
func TestSignalListener(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	build := func() *Builder {
		b := NewBuilder()
		b.Dynamic = true
		return b.Signal(syscall.SIGUSR1).
			File(FileConfig{Path: path, Level: LevelInfo, Format: msgFormat()})
	}

	_, err := build().Setup()
	require.NoError(t, err)
	require.True(t, global.listenerStarted.Load())

	// Identical configuration: idempotent, nothing new spawned.
	_, err = build().Setup()
	require.NoError(t, err)

	Infof("before rotate")
	require.NoError(t, os.Rename(path, path+".old"))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	// The listener's reopen broadcast recreates the live path.
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	Infof("after rotate")
	Flush()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO after rotate\n", string(data))
	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "INFO before rotate\n", string(old))

	// A differing configuration that also wants signals keeps the first
	// listener and says so.
	var mu sync.Mutex
	var notes []string
	second := NewBuilder()
	second.Dynamic = true
	second.DiagHandler = func(component, path, msg string, err error) {
		mu.Lock()
		notes = append(notes, component+": "+msg)
		mu.Unlock()
	}
	second.Signal(syscall.SIGUSR1).
		File(FileConfig{Path: filepath.Join(dir, "other.log"), Level: LevelInfo, Format: msgFormat()})
	_, err = second.Setup()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "signal listener already started")
}

// TestHotSwapUnderLoad hammers the hot path while the sink collection is
// replaced repeatedly: every call lands on a complete snapshot, every line
// that reaches a file is whole.
func TestHotSwapUnderLoad(t *testing.T) {
	dir := t.TempDir()
	paths := [2]string{filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")}
	build := func(i int) *Builder {
		b := NewBuilder().Test().
			File(FileConfig{Path: paths[i], Level: LevelDebug, Format: msgFormat()})
		// Writes racing a swap land on a closed handle; keep those quiet.
		b.DiagHandler = func(string, string, string, error) {}
		return b
	}
	_, err := build(0).Setup()
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
					Infof("g%d-%d", g, i)
				}
			}
		}(g)
	}
	for i := 1; i <= 40; i++ {
		_, err := build(i % 2).Setup()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	Flush()

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if line == "" {
				continue
			}
			assert.Regexp(t, `^INFO g\d-\d+$`, line)
		}
	}
}

func TestRecoverContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	b := NewBuilder().Test().
		File(FileConfig{Path: path, Level: LevelDebug, Format: msgFormat()})
	b.ContinueOnPanic = true
	_, err := b.Setup()
	require.NoError(t, err)

	func() {
		defer Recover()
		panic("survivable")
	}()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "panic: survivable")
}

func TestRecoverRepanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	_, err := NewBuilder().Test().
		File(FileConfig{Path: path, Level: LevelDebug, Format: msgFormat()}).
		Setup()
	require.NoError(t, err)

	caught := func() (v any) {
		defer func() { v = recover() }()
		defer Recover()
		panic("fatal")
	}()
	assert.Equal(t, "fatal", caught)

	// The event reached the log before the panic resumed.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "panic: fatal")
}

func TestMetricsMove(t *testing.T) {
	h, _ := fileSetup(t, LevelDebug)

	before := h.Metrics()
	for i := 0; i < 10; i++ {
		Infof("tick %d", i)
	}
	h.Flush()
	after := h.Metrics()

	assert.GreaterOrEqual(t, after.MessagesLogged-before.MessagesLogged, uint64(10))
	assert.Greater(t, after.BytesWritten, before.BytesWritten)
}

func TestRecipes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.log")
	h, err := RawFileLogger(path, LevelInfo).Test().Setup()
	require.NoError(t, err)

	Infof("via recipe")
	h.Flush()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "via recipe")

	bufPath := filepath.Join(t.TempDir(), "buf.log")
	h, err = BufferedFileLogger(bufPath, LevelDebug, 0, rotation.BySize(1<<20, 2)).Test().Setup()
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		Debugf("line %04d", i)
	}
	h.Flush()
	data, err = os.ReadFile(bufPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line 0099")
}

func TestFieldsRender(t *testing.T) {
	_, path := fileSetup(t, LevelDebug)

	h, ok := ActiveHandle()
	require.True(t, ok)
	h.Log(&Record{
		Level:  LevelInfo,
		Msg:    "req done",
		Fields: []Field{{Key: "status", Value: "200"}},
	})
	h.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO req done\n", string(data), "custom format ignores fields it does not render")
}
