package spout

import (
	"encoding/binary"
	"io"
	"reflect"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/rotation"
	"github.com/spoutlog/spout/pkg/sinks"
	"github.com/spoutlog/spout/pkg/types"
)

// BuildEnv carries the dispatcher-owned collaborators a descriptor needs to
// construct a live sink.
type BuildEnv struct {
	Diag  sinks.DiagFunc
	Stats *metrics.Collector
}

// SinkConfig is one declarative sink descriptor. Descriptors are plain
// values owned by the Builder; each is consumed exactly once to construct a
// live sink, and each contributes to the configuration checksum.
type SinkConfig interface {
	// Threshold is the most verbose level this sink admits.
	Threshold() types.Level

	// FilePath reports the sink's file path, when it has one.
	FilePath() (string, bool)

	// WriteHash feeds every descriptor field into the checksum.
	WriteHash(h *xxhash.Digest)

	// Build constructs the live sink. It must not open OS resources; the
	// dispatcher opens sinks afterwards so setup stays all-or-nothing.
	Build(env BuildEnv) sinks.Sink
}

// Builder assembles the dispatcher configuration: an ordered list of sink
// descriptors plus process-wide behavior flags.
type Builder struct {
	// Dynamic allows repeated Setup calls with differing configurations,
	// hot-swapping the sink collection. Meant for test suites; production
	// setups leave it false and get an immutable logger.
	Dynamic bool

	// ContinueOnPanic selects the panic guard flavor: log-flush-continue
	// when true, log-flush-repanic when false.
	ContinueOnPanic bool

	// Signals lists the OS signals that trigger a Reopen broadcast.
	Signals []syscall.Signal

	// DiagHandler receives post-setup sink and rotation diagnostics.
	// Defaults to stderr.
	DiagHandler sinks.DiagFunc

	configs []SinkConfig
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// Test flips the builder into test-suite mode: dynamic reconfiguration on,
// signal listening off.
func (b *Builder) Test() *Builder {
	b.Dynamic = true
	b.Signals = nil
	return b
}

// Signal adds a log-rotate signal to listen on.
func (b *Builder) Signal(sig syscall.Signal) *Builder {
	b.Signals = append(b.Signals, sig)
	return b
}

// Console adds a console sink.
func (b *Builder) Console(cfg ConsoleConfig) *Builder { return b.add(cfg) }

// File adds a plain file sink with multi-process atomic append.
func (b *Builder) File(cfg FileConfig) *Builder { return b.add(cfg) }

// BufFile adds a buffered file sink with merged I/O and delayed flush.
func (b *Builder) BufFile(cfg BufFileConfig) *Builder { return b.add(cfg) }

// Syslog adds a network syslog sink.
func (b *Builder) Syslog(cfg SyslogConfig) *Builder { return b.add(cfg) }

// RingFile adds an in-memory ring sink that dumps on signal.
func (b *Builder) RingFile(cfg RingFileConfig) *Builder { return b.add(cfg) }

func (b *Builder) add(cfg SinkConfig) *Builder {
	b.configs = append(b.configs, cfg)
	return b
}

// Checksum hashes the full configuration, including sink order. Identical
// configurations produce identical sums; any field change produces a
// different one. It is the sole signal deciding reuse vs. reconfiguration
// vs. rejection on a repeated Setup.
func (b *Builder) Checksum() uint64 {
	h := xxhash.New()
	hashBool(h, b.Dynamic)
	hashBool(h, b.ContinueOnPanic)
	for _, sig := range b.Signals {
		hashU64(h, uint64(sig))
	}
	for _, cfg := range b.configs {
		cfg.WriteHash(h)
	}
	return h.Sum64()
}

// maxLevel returns the most verbose threshold across all sinks, used for the
// dispatcher's early-out.
func (b *Builder) maxLevel() types.Level {
	max := types.LevelError
	for _, cfg := range b.configs {
		if l := cfg.Threshold(); l > max {
			max = l
		}
	}
	return max
}

// Setup installs this configuration on the global dispatcher.
func (b *Builder) Setup() (*Handle, error) { return Setup(b) }

func hashU64(h *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func hashBool(h *xxhash.Digest, v bool) {
	if v {
		hashU64(h, 1)
	} else {
		hashU64(h, 0)
	}
}

// hashFormat hashes the time layout and the format function's code pointer.
// Checksums are only ever compared within one process, so the pointer is a
// stable identity for the function.
func hashFormat(h *xxhash.Digest, f types.Format) {
	io.WriteString(h, f.TimeLayout)
	hashU64(h, uint64(reflect.ValueOf(f.Fn).Pointer()))
}

func orDefault(f types.Format) types.Format {
	if f.Fn == nil {
		return types.DefaultFormat()
	}
	return f
}

// ConsoleConfig describes a console sink.
type ConsoleConfig struct {
	Level  types.Level
	Format types.Format
	Stderr bool
}

func (c ConsoleConfig) Threshold() types.Level { return c.Level }
func (c ConsoleConfig) FilePath() (string, bool) { return "", false }

func (c ConsoleConfig) Build(env BuildEnv) sinks.Sink {
	return sinks.NewConsole(c.Level, orDefault(c.Format), c.Stderr, env.Stats)
}

func (c ConsoleConfig) WriteHash(h *xxhash.Digest) {
	io.WriteString(h, "console")
	hashU64(h, uint64(c.Level))
	hashFormat(h, orDefault(c.Format))
	hashBool(h, c.Stderr)
}

// FileConfig describes a plain file sink.
type FileConfig struct {
	Path   string
	Level  types.Level
	Format types.Format
}

func (c FileConfig) Threshold() types.Level { return c.Level }
func (c FileConfig) FilePath() (string, bool) { return c.Path, true }
func (c FileConfig) Build(env BuildEnv) sinks.Sink {
	return sinks.NewFile(c.Path, c.Level, orDefault(c.Format), env.Diag, env.Stats)
}

func (c FileConfig) WriteHash(h *xxhash.Digest) {
	io.WriteString(h, "file")
	io.WriteString(h, c.Path)
	hashU64(h, uint64(c.Level))
	hashFormat(h, orDefault(c.Format))
}

// BufFileConfig describes a buffered file sink.
type BufFileConfig struct {
	Path   string
	Level  types.Level
	Format types.Format

	// FlushInterval of zero flushes whenever the queue drains; otherwise
	// clamped to [1ms, 1s].
	FlushInterval time.Duration

	// FlushSize defaults to 4096 bytes.
	FlushSize int

	// QueueCap defaults to 100 outstanding lines.
	QueueCap int

	// Rotation enables self-managed rotation when it carries a trigger.
	Rotation rotation.Policy
}

func (c BufFileConfig) Threshold() types.Level { return c.Level }
func (c BufFileConfig) FilePath() (string, bool) { return c.Path, true }

func (c BufFileConfig) Build(env BuildEnv) sinks.Sink {
	return sinks.NewBufFile(c.Path, c.Level, orDefault(c.Format), sinks.BufFileOptions{
		FlushSize:     c.FlushSize,
		FlushInterval: c.FlushInterval,
		QueueCap:      c.QueueCap,
		Rotation:      c.Rotation,
	}, env.Diag, env.Stats)
}

func (c BufFileConfig) WriteHash(h *xxhash.Digest) {
	io.WriteString(h, "buffile")
	io.WriteString(h, c.Path)
	hashU64(h, uint64(c.Level))
	hashFormat(h, orDefault(c.Format))
	hashU64(h, uint64(c.FlushInterval))
	hashU64(h, uint64(c.FlushSize))
	hashU64(h, uint64(c.QueueCap))
	c.Rotation.WriteHash(h)
}

// SyslogConfig describes a network syslog sink.
type SyslogConfig struct {
	// Network and Address as for net.Dial; both empty probes the local
	// syslog sockets.
	Network string
	Address string

	Facility int
	Tag      string
	Level    types.Level
	Format   types.Format
}

func (c SyslogConfig) Threshold() types.Level { return c.Level }
func (c SyslogConfig) FilePath() (string, bool) { return "", false }

func (c SyslogConfig) Build(env BuildEnv) sinks.Sink {
	return sinks.NewSyslog(c.Network, c.Address, c.Facility, c.Tag, c.Level, orDefault(c.Format), env.Diag, env.Stats)
}

func (c SyslogConfig) WriteHash(h *xxhash.Digest) {
	io.WriteString(h, "syslog")
	io.WriteString(h, c.Network)
	io.WriteString(h, c.Address)
	hashU64(h, uint64(c.Facility))
	io.WriteString(h, c.Tag)
	hashU64(h, uint64(c.Level))
	hashFormat(h, orDefault(c.Format))
}

// RingFileConfig describes an in-memory ring sink.
type RingFileConfig struct {
	Path   string
	Size   int
	Level  types.Level
	Format types.Format
}

func (c RingFileConfig) Threshold() types.Level { return c.Level }
func (c RingFileConfig) FilePath() (string, bool) { return c.Path, true }

func (c RingFileConfig) Build(env BuildEnv) sinks.Sink {
	return sinks.NewRingFile(c.Path, c.Size, c.Level, orDefault(c.Format), env.Diag, env.Stats)
}

func (c RingFileConfig) WriteHash(h *xxhash.Digest) {
	io.WriteString(h, "ringfile")
	io.WriteString(h, c.Path)
	hashU64(h, uint64(c.Size))
	hashU64(h, uint64(c.Level))
	hashFormat(h, orDefault(c.Format))
}
