// Package rpclog is a small terminal-aware structured logger, built the
// way github.com/ethereum/go-ethereum/log is: a levelled Logger (with a
// log/slog handler adapter), colorized output chosen by whether the sink is
// a terminal, and caller frames attached at the noisier levels.
//
// Grounded on _examples/ethereum-go-ethereum/log/*_test.go (NewGlogHandler,
// NewTerminalHandlerWithLevel, Logger.Trace/Debug/Info/Warn/Error) and on
// the teacher's own glog.V(logger.Detail) call sites in rpc/client.go.
package rpclog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level mirrors go-ethereum's six-level scheme.
type Level int

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelCrit:
		return "CRIT"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?"
	}
}

var levelColor = map[Level]string{
	LevelCrit:  "\x1b[35m",
	LevelError: "\x1b[31m",
	LevelWarn:  "\x1b[33m",
	LevelInfo:  "\x1b[32m",
	LevelDebug: "\x1b[36m",
	LevelTrace: "\x1b[90m",
}

const colorReset = "\x1b[0m"

// Logger is a cheap, concurrency-safe leveled logger with static fields.
type Logger struct {
	mu      *sync.Mutex
	out     io.Writer
	color   bool
	level   Level
	fields  []any
	callers bool
}

// New builds a Logger writing to w. Colorization is enabled automatically
// when w is a *os.File pointing at a terminal (mattn/go-isatty), and routed
// through mattn/go-colorable so ANSI codes render on Windows consoles too.
func New(w io.Writer, level Level) *Logger {
	color := false
	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		color = true
		out = colorable.NewColorable(f)
	}
	return &Logger{mu: new(sync.Mutex), out: out, color: color, level: level, callers: level >= LevelDebug}
}

// Default is the package-level logger used when a component is not handed
// one explicitly; it writes to stderr at Info level, matching go-ethereum's
// default root logger.
var Default = New(os.Stderr, LevelInfo)

// With returns a derived Logger that always includes the given key/value
// fields, without mutating the receiver.
func (l *Logger) With(fields ...any) *Logger {
	next := *l
	next.fields = append(append([]any{}, l.fields...), fields...)
	return &next
}

func (l *Logger) log(level Level, msg string, fields ...any) {
	if level > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("01-02|15:04:05.000")
	var b strings.Builder
	if l.color {
		b.WriteString(levelColor[level])
	}
	fmt.Fprintf(&b, "%-5s", level.String())
	if l.color {
		b.WriteString(colorReset)
	}
	fmt.Fprintf(&b, " [%s] %s", ts, msg)

	all := append(append([]any{}, l.fields...), fields...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if l.callers {
		if c := stack.Caller(2); c != (stack.Call{}) {
			fmt.Fprintf(&b, " caller=%v", c)
		}
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *Logger) Trace(msg string, fields ...any) { l.log(LevelTrace, msg, fields...) }
func (l *Logger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields...) }
func (l *Logger) Crit(msg string, fields ...any)  { l.log(LevelCrit, msg, fields...) }

// SlogHandler adapts Logger to log/slog.Handler for libraries that expect
// one.
func (l *Logger) SlogHandler() slog.Handler {
	return slog.NewTextHandler(l.out, &slog.HandlerOptions{Level: slogLevel(l.level)})
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
