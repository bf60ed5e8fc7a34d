package sinks

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/types"
)

// Syslog ships formatted lines to a syslog daemon over unix, udp or tcp.
// Like the buffered file sink it owns its connection on a dedicated writer
// goroutine fed by a bounded queue; a failed write gets one redial attempt
// and is otherwise dropped. The full reconnect machinery lives outside this
// module.
type Syslog struct {
	level    types.Level
	format   types.Format
	network  string
	address  string
	facility int
	tag      string
	queueCap int
	diag     DiagFunc
	stats    *metrics.Collector

	ch chan bufMsg
	wg sync.WaitGroup

	sendMu sync.RWMutex
	closed bool
}

// NewSyslog creates a syslog sink. Empty network/address probe the usual
// local sockets.
func NewSyslog(network, address string, facility int, tag string, level types.Level, format types.Format, diag DiagFunc, stats *metrics.Collector) *Syslog {
	if diag == nil {
		diag = StderrDiag
	}
	if tag == "" {
		tag = "spout"
	}
	return &Syslog{
		level:    level,
		format:   format,
		network:  network,
		address:  address,
		facility: facility,
		tag:      tag,
		queueCap: DefaultQueueCap,
		diag:     diag,
		stats:    stats,
	}
}

func (s *Syslog) dial() (net.Conn, error) {
	network, address := s.network, s.address
	if address == "" {
		for _, p := range []string{"/dev/log", "/var/run/syslog", "/var/run/log"} {
			if _, err := os.Stat(p); err == nil {
				network, address = "unixgram", p
				break
			}
		}
		if address == "" {
			return nil, errors.New("no local syslog socket found")
		}
	}
	conn, err := net.Dial(network, address)
	return conn, errors.Wrap(err, "dial syslog")
}

// Open dials synchronously (so setup can fail) and starts the writer.
func (s *Syslog) Open() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.ch != nil {
		return nil
	}
	conn, err := s.dial()
	if err != nil {
		return err
	}
	w := &syslogWriter{sink: s, conn: conn}
	s.ch = make(chan bufMsg, s.queueCap)
	s.closed = false
	s.wg.Add(1)
	go func(ch chan bufMsg) {
		defer s.wg.Done()
		w.run(ch)
	}(s.ch)
	return nil
}

func (s *Syslog) send(m bufMsg) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed || s.ch == nil {
		if s.stats != nil {
			s.stats.TrackDropped()
		}
		return false
	}
	s.ch <- m
	return true
}

func (s *Syslog) Log(rec *types.Record) {
	if rec.Level > s.level {
		return
	}
	line := s.format.Process(rec)
	pri := s.facility*8 + severityOf(rec.Level)
	msg := fmt.Sprintf("<%d>%s: %s", pri, s.tag, strings.TrimRight(line, "\n"))
	if s.send(bufMsg{kind: msgLine, line: []byte(msg + "\n")}) && s.stats != nil {
		s.stats.TrackMessage()
	}
}

// Reopen forces a redial on the writer goroutine.
func (s *Syslog) Reopen() {
	s.send(bufMsg{kind: msgReopen})
}

func (s *Syslog) Flush() {
	done := make(chan struct{})
	if s.send(bufMsg{kind: msgFlush, done: done}) {
		<-done
	}
}

func (s *Syslog) Close() error {
	s.sendMu.Lock()
	if s.closed || s.ch == nil {
		s.sendMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.sendMu.Unlock()
	s.wg.Wait()
	return nil
}

// severityOf maps levels onto syslog severities.
func severityOf(l types.Level) int {
	switch l {
	case types.LevelError:
		return 3
	case types.LevelWarn:
		return 4
	case types.LevelInfo:
		return 6
	default:
		return 7
	}
}

type syslogWriter struct {
	sink *Syslog
	conn net.Conn
}

func (w *syslogWriter) run(ch <-chan bufMsg) {
	defer func() {
		if w.conn != nil {
			w.conn.Close()
		}
	}()
	for m := range ch {
		switch m.kind {
		case msgLine:
			w.write(m.line)
		case msgReopen:
			w.redial()
		case msgFlush:
			close(m.done)
		}
	}
}

func (w *syslogWriter) redial() {
	conn, err := w.sink.dial()
	if err != nil {
		w.sink.diag("syslog", w.sink.address, "redial failed", err)
		return
	}
	if w.conn != nil {
		w.conn.Close()
	}
	w.conn = conn
}

func (w *syslogWriter) write(line []byte) {
	if w.conn == nil {
		w.redial()
		if w.conn == nil {
			return
		}
	}
	if _, err := w.conn.Write(line); err != nil {
		// One retry over a fresh connection, then drop.
		w.redial()
		if w.conn == nil {
			return
		}
		if _, err := w.conn.Write(line); err != nil {
			w.sink.diag("syslog", w.sink.address, "write failed", err)
		}
	}
}
