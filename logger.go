package pybindgen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/refaktor/pybindgen/textutils"
)

type LogLevel int

const (
	INFO  LogLevel = 0
	WARN  LogLevel = 1
	ERROR LogLevel = 2
	FATAL LogLevel = 99
)

var levelLabels = map[LogLevel]struct {
	text  string
	attrs []color.Attribute
}{
	INFO:  {"INFO", []color.Attribute{color.FgCyan}},
	WARN:  {"WARNING", []color.Attribute{color.FgYellow}},
	ERROR: {"ERROR", []color.Attribute{color.FgRed}},
	FATAL: {"FATAL", []color.Attribute{color.FgRed, color.Bold}},
}

type Logger struct {
	Writer   io.Writer
	Prefix   string
	MinLevel LogLevel
	// Color enables colored level labels.
	Color bool
}

func (l *Logger) Log(level LogLevel, format string, args ...any) {
	if l == nil || l.Writer == nil || level < l.MinLevel {
		return
	}
	label, ok := levelLabels[level]
	if !ok {
		panic(fmt.Sprintf("invalid log level: %v", level))
	}
	var b bytes.Buffer
	if l.Prefix != "" {
		b.WriteString(l.Prefix)
		b.WriteString(" ")
	}
	if l.Color {
		c := color.New(label.attrs...)
		c.EnableColor()
		b.WriteString(c.Sprint(label.text))
	} else {
		b.WriteString(label.text)
	}
	b.WriteString(":")
	s := fmt.Sprintf(format, args...)
	if strings.Contains(s, "\n") {
		b.WriteString("\n")
		s = textutils.IndentString(s, "  ", 1)
	} else {
		b.WriteString(" ")
	}
	b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
	_, _ = io.Copy(l.Writer, &b)
	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Infof(format string, args ...any)  { l.Log(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Log(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Log(ERROR, format, args...) }
