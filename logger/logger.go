package logger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

type defaultLogger struct {
	Writer
	Config
	infoStr, warnStr, errStr, debugStr  string
	traceStr, traceWarnStr, traceErrStr string
}

// New creates a new logger instance
func New(writer Writer, config Config) Interface {
	var (
		infoStr      = "[info] "
		warnStr      = "[warn] "
		errStr       = "[error] "
		debugStr     = "[debug] "
		traceStr     = "[%.3fms] [notifications:%v] %s"
		traceWarnStr = "%s [%.3fms] [notifications:%v] %s"
		traceErrStr  = "%s [%.3fms] [notifications:%v] %s"
	)

	if config.Colorful {
		infoStr = Green + "[info] " + Reset
		warnStr = Magenta + "[warn] " + Reset
		errStr = Red + "[error] " + Reset
		debugStr = White + "[debug] " + Reset
		traceStr = Yellow + "[%.3fms] " + BlueBold + "[notifications:%v]" + Reset + " %s"
		traceWarnStr = Yellow + "%s " + RedBold + "[%.3fms] " + Yellow + "[notifications:%v]" + Magenta + " %s" + Reset
		traceErrStr = RedBold + "%s " + Yellow + "[%.3fms] " + BlueBold + "[notifications:%v]" + Reset + " %s"
	}

	return &defaultLogger{
		Writer:       writer,
		Config:       config,
		infoStr:      infoStr,
		warnStr:      warnStr,
		errStr:       errStr,
		debugStr:     debugStr,
		traceStr:     traceStr,
		traceWarnStr: traceWarnStr,
		traceErrStr:  traceErrStr,
	}
}

// LogMode creates a new logger with the specified log level
func (l *defaultLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *defaultLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.Printf("%s", l.infoStr+msg+formatFields(data))
	}
}

func (l *defaultLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.Printf("%s", l.warnStr+msg+formatFields(data))
	}
}

func (l *defaultLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.Printf("%s", l.errStr+msg+formatFields(data))
	}
}

func (l *defaultLogger) Debug(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Debug {
		l.Printf("%s", l.debugStr+msg+formatFields(data))
	}
}

// Trace logs fan-out operations with duration
func (l *defaultLogger) Trace(ctx context.Context, begin time.Time, fc func() (operation string, notifications int64), err error) {
	if l.LogLevel <= Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.LogLevel >= Error:
		operation, notifications := fc()
		l.Printf(l.traceErrStr, err.Error(), float64(elapsed.Nanoseconds())/1e6, notifications, operation)
	case elapsed > l.SlowThreshold && l.SlowThreshold != 0 && l.LogLevel >= Warn:
		operation, notifications := fc()
		slowLog := fmt.Sprintf("SLOW OPERATION >= %v", l.SlowThreshold)
		l.Printf(l.traceWarnStr, slowLog, float64(elapsed.Nanoseconds())/1e6, notifications, operation)
	case l.LogLevel >= Info:
		operation, notifications := fc()
		l.Printf(l.traceStr, float64(elapsed.Nanoseconds())/1e6, notifications, operation)
	}
}

// formatFields renders variadic key-value pairs as " k=v k=v"
func formatFields(data []interface{}) string {
	if len(data) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i+1 < len(data); i += 2 {
		fmt.Fprintf(&b, " %v=%v", data[i], data[i+1])
	}
	if len(data)%2 == 1 {
		fmt.Fprintf(&b, " %v", data[len(data)-1])
	}
	return b.String()
}

// NewStdLogger creates a logger that outputs through the standard log package
func NewStdLogger(level LogLevel) Interface {
	return New(stdWriter{}, Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
	})
}

// stdWriter wraps Go's standard log package
type stdWriter struct{}

func (stdWriter) Printf(msg string, data ...interface{}) {
	log.Printf(msg, data...)
}
