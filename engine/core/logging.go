package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

type LogLevel = log.Level

const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
	FatalLevel = log.FatalLevel
)

func getLogger() *logger {
	once.Do(func() {
		l := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "Engine 🏎️ ",
		})
		l.SetLevel(log.DebugLevel)
		// Skip the LogX wrappers when reporting the caller.
		l.SetCallerOffset(1)
		singleton = &logger{l}
	})
	return singleton
}

var (
	scopedMu sync.Mutex
	scoped   = map[string]*log.Logger{}
)

// Logger exposes the engine logger so subsystems can derive prefixed
// children from it.
func Logger() *log.Logger {
	return getLogger().Logger
}

// NewLogger returns the child of the engine logger tagged with prefix,
// creating it on first use. Children follow later SetLogLevel and
// SetLogOutput calls.
func NewLogger(prefix string) *log.Logger {
	root := Logger()
	scopedMu.Lock()
	defer scopedMu.Unlock()
	if l, ok := scoped[prefix]; ok {
		return l
	}
	l := root.WithPrefix(prefix)
	// Children are called directly, not through the LogX wrappers.
	l.SetCallerOffset(0)
	scoped[prefix] = l
	return l
}

func eachLogger(fn func(*log.Logger)) {
	fn(getLogger().Logger)
	scopedMu.Lock()
	defer scopedMu.Unlock()
	for _, l := range scoped {
		fn(l)
	}
}

// SetLogLevel changes the verbosity of every engine logger.
func SetLogLevel(level LogLevel) {
	eachLogger(func(l *log.Logger) { l.SetLevel(level) })
}

// SetLogOutput redirects every engine logger, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	eachLogger(func(l *log.Logger) { l.SetOutput(w) })
}

// ParseLogLevel accepts the names used in the configuration file.
func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	}
	return InfoLevel, errors.Newf("unknown log level %q", name)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
