package lib

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Cores ANSI
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

const (
	LogLevelEnv = "MINIT_LOG"
	LogStyleEnv = "MINIT_LOG_STYLE"
)

// entries logged through LogSuccess carry this field so they get their own prefix
const successField = "success"

var log = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: &PrefixFormatter{},
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.InfoLevel,
}

// PrefixFormatter renders entries as "LEVEL: message key=value ...", with the
// prefix coloured when Color is set.
type PrefixFormatter struct {
	Color bool
}

func (f *PrefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	prefix, color := levelPrefix(e)
	if f.Color {
		b.WriteString(color + prefix + Reset)
	} else {
		b.WriteString(prefix)
	}
	b.WriteByte(' ')
	b.WriteString(strings.TrimRight(e.Message, "\n"))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k == successField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelPrefix(e *logrus.Entry) (string, string) {
	switch e.Level {
	case logrus.TraceLevel:
		return "TRACE:", Gray
	case logrus.DebugLevel:
		return "DEBUG:", Gray
	case logrus.InfoLevel:
		if _, ok := e.Data[successField]; ok {
			return "SUCCESS:", Green
		}
		return "INFO:", Cyan
	case logrus.WarnLevel:
		return "WARN:", Yellow
	default:
		return "ERROR:", Red
	}
}

// SetupLogging configures the process logger on stderr. An empty level falls
// back to $MINIT_LOG, then to info. Colour follows $MINIT_LOG_STYLE.
func SetupLogging(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnv)
	}
	return ConfigureLogger(os.Stderr, level, os.Getenv(LogStyleEnv))
}

// ConfigureLogger points the logger at out. style is one of auto, always or
// never; auto colours output only when out is a terminal.
func ConfigureLogger(out io.Writer, level, style string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	color, err := useColor(out, style)
	if err != nil {
		return err
	}

	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetFormatter(&PrefixFormatter{Color: color})
	return nil
}

func useColor(out io.Writer, style string) (bool, error) {
	switch strings.ToLower(style) {
	case "", "auto":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	}
	return false, fmt.Errorf("log style %q: want auto, always or never", style)
}

// Logger exposes the underlying logger for structured fields.
func Logger() *logrus.Logger {
	return log
}

func LogTrace(format string, a ...interface{}) {
	log.Tracef(format, a...)
}

func LogDebug(format string, a ...interface{}) {
	log.Debugf(format, a...)
}

func LogInfo(format string, a ...interface{}) {
	log.Infof(format, a...)
}

func LogSuccess(format string, a ...interface{}) {
	log.WithField(successField, true).Infof(format, a...)
}

func LogWarn(format string, a ...interface{}) {
	log.Warnf(format, a...)
}

// LogError logs at error level and hands the message back as an error.
func LogError(format string, a ...interface{}) error {
	msg := fmt.Sprintf(format, a...)
	log.Error(msg)
	return errors.New(msg)
}
