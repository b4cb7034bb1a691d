package log

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Level is the minimum level that will be emitted.
type Level int32

const (
	LevelSilent Level = -1
	LevelError  Level = iota - 1
	LevelInfo
	LevelTrace
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelSilent:
		return "silent"
	case LevelError:
		return "error"
	case LevelInfo:
		return "info"
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

var (
	CurLevel  atomic.Int32
	errFile   *os.File
	errLogger *log.Logger
	errMu     sync.Mutex

	// stderr as it was before InitErrorFile redirected fd 2
	origStderr io.Writer = os.Stderr
)

// fanout writes every line to all sinks and ignores sink errors.
type fanout struct {
	mu sync.Mutex
	ws []io.Writer
}

func (f *fanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.ws {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

var (
	mu         sync.Mutex
	base       = &fanout{ws: []io.Writer{os.Stderr}}
	buf        *bufio.Writer
	logger     *log.Logger
	flushTimer *time.Ticker
	flushStop  chan struct{}
	flushers   atomic.Int32 // running flusher goroutines
	insta      = true
)

func init() {
	CurLevel.Store(int32(LevelInfo))
}

// Init sets the base writer, level, and instaflush behavior.
func Init(w io.Writer, level Level, instaflush bool) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	base.mu.Lock()
	base.ws = []io.Writer{w}
	base.mu.Unlock()
	insta = instaflush
	CurLevel.Store(int32(level))
	rebuildLocked()
}

// AttachSink adds an extra writer next to the base one.
func AttachSink(w io.Writer) {
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	base.mu.Lock()
	base.ws = append(base.ws, w)
	base.mu.Unlock()
	rebuildLocked()
}

// EnableSyslog connects to the local syslog and attaches it as a sink.
func EnableSyslog(tag string) error {
	sw, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return err
	}
	AttachSink(sw)
	return nil
}

func SetLevel(l Level) { CurLevel.Store(int32(l)) }

func GetLevel() Level { return Level(CurLevel.Load()) }

// SetInstaflush toggles line buffering. Switching to instaflush flushes any
// pending buffered data immediately.
func SetInstaflush(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if insta == v {
		return
	}
	if buf != nil && v {
		_ = buf.Flush()
	}
	insta = v
	rebuildLocked()
}

// Flush forces a flush when buffering is enabled.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if buf != nil {
		_ = buf.Flush()
	}
}

// OrigStderr returns the process stderr captured before any redirection.
func OrigStderr() io.Writer { return origStderr }

// InitErrorFile appends error lines to path and points fd 2 at it so panics
// and runtime traces end up there too.
func InitErrorFile(path string) error {
	if path == "" {
		return nil
	}
	errMu.Lock()
	defer errMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	if dup, err := unix.Dup(int(os.Stderr.Fd())); err == nil {
		origStderr = os.NewFile(uintptr(dup), "stderr")
	}
	if err := unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())); err != nil {
		f.Close()
		return fmt.Errorf("failed to redirect stderr: %w", err)
	}

	errFile = f
	errLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

func CloseErrorFile() {
	errMu.Lock()
	defer errMu.Unlock()
	if errFile != nil {
		_ = errFile.Sync()
		_ = errFile.Close()
		errFile = nil
		errLogger = nil
	}
}

// ---- printing ------------------------------------------------------------

// Errorf logs at error level and returns the formatted error, so call sites
// can write `return log.Errorf(...)`.
func Errorf(format string, a ...any) error {
	err := fmt.Errorf(format, a...)
	if GetLevel() >= LevelError {
		out("[ERROR] %s", err.Error())
	}

	errMu.Lock()
	if errLogger != nil {
		errLogger.Println("[ERROR] " + err.Error())
		_ = errFile.Sync()
	}
	errMu.Unlock()

	return err
}

func Warnf(format string, a ...any) {
	if GetLevel() >= LevelError {
		out("[WARN] "+format, a...)
	}
}

func Infof(format string, a ...any) {
	if GetLevel() >= LevelInfo {
		out("[INFO] "+format, a...)
	}
}

func Tracef(format string, a ...any) {
	if GetLevel() >= LevelTrace {
		out("[TRACE] "+format, a...)
	}
}

func Debugf(format string, a ...any) {
	if GetLevel() >= LevelDebug {
		out("[DEBUG] "+format, a...)
	}
}

func out(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		rebuildLocked()
	}
	logger.Printf(format, a...)
}

// ---- internals -----------------------------------------------------------

func rebuildLocked() {
	var w io.Writer = base
	if insta {
		buf = nil
		logger = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		stopFlusherLocked()
		return
	}

	buf = bufio.NewWriterSize(w, 16*1024)
	logger = log.New(buf, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	startFlusherLocked()
}

func startFlusherLocked() {
	stopFlusherLocked()
	flushTimer = time.NewTicker(2 * time.Second)
	flushStop = make(chan struct{})
	flushers.Add(1)
	go func(t *time.Ticker, stop <-chan struct{}) {
		defer flushers.Add(-1)
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				mu.Lock()
				if buf != nil {
					_ = buf.Flush()
				}
				mu.Unlock()
			}
		}
	}(flushTimer, flushStop)
}

// stopFlusherLocked must not wait for the flusher: it holds mu.
func stopFlusherLocked() {
	if flushTimer != nil {
		flushTimer.Stop()
		close(flushStop)
		flushTimer = nil
		flushStop = nil
	}
}

// ParseLevel maps the --verbose values onto a Level. Unknown strings fall
// back to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	case "error":
		return LevelError
	case "silent":
		return LevelSilent
	default:
		return LevelInfo
	}
}

func Info(a ...any)  { Infof("%s", fmt.Sprint(a...)) }
func Trace(a ...any) { Tracef("%s", fmt.Sprint(a...)) }
func Error(a ...any) { _ = Errorf("%s", fmt.Sprint(a...)) }
