// Package logx is ipcator's internal leveled logger. It exists to report
// conditions that must be logged rather than surfaced as errors (swallowed
// kernel errors from munmap/shm_unlink) without pulling in an
// application-facing logging dependency: callers wire their own
// observability stack around the library, but it still needs somewhere to
// put its own internal warnings.
package logx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

var levelName = []string{"Debug", "Info", "Warn", "Error"}

var (
	magenta = string([]byte{27, 91, 57, 53, 109})
	green   = string([]byte{27, 91, 57, 50, 109})
	yellow  = string([]byte{27, 91, 57, 51, 109})
	red     = string([]byte{27, 91, 57, 49, 109})
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{green, magenta, yellow, red}
)

// Logger writes leveled, colorized, call-site-annotated log lines.
type Logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var level = levelWarn

func init() {
	if v := os.Getenv("IPCATOR_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n <= levelNoPrint {
			level = n
		}
	}
}

// SetLevel changes the package-wide minimum log level. The default is Warn.
func SetLevel(l int) {
	if l <= levelNoPrint {
		level = l
	}
}

// New returns a Logger prefixed with name, writing to out (os.Stderr if nil).
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{name: name, out: out, callDepth: 4}
}

// Default is the package-wide logger used by callers that don't need a
// dedicated name.
var Default = New("ipcator", nil)

func (l *Logger) log(lvl int, format string, a ...any) {
	if level > lvl {
		return
	}
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintln(l.out, l.prefix(lvl)+msg+reset)
}

// Debugf logs at Debug level.
func (l *Logger) Debugf(format string, a ...any) { l.log(levelDebug, format, a...) }

// Infof logs at Info level.
func (l *Logger) Infof(format string, a ...any) { l.log(levelInfo, format, a...) }

// Warnf logs at Warn level.
func (l *Logger) Warnf(format string, a ...any) { l.log(levelWarn, format, a...) }

// Errorf logs at Error level.
func (l *Logger) Errorf(format string, a ...any) { l.log(levelError, format, a...) }

func (l *Logger) prefix(lvl int) string {
	var b bytes.Buffer
	b.WriteString(colors[lvl])
	b.WriteString(levelName[lvl])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000000"))
	b.WriteByte(' ')
	b.WriteString(l.location())
	b.WriteByte(' ')
	b.WriteString(l.name)
	b.WriteByte(' ')
	return b.String()
}

func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		return "???"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
