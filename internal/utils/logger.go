package utils

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	debug       bool
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
}

// NewLogger writes all levels to out; DEBUG lines are emitted only when debug is set.
func NewLogger(debug bool, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	flags := log.Ldate | log.Ltime | log.Lshortfile

	return &Logger{
		debug:       debug,
		debugLogger: log.New(out, "DEBUG: ", flags),
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(out, "WARN: ", flags),
		errorLogger: log.New(out, "ERROR: ", flags),
		fatalLogger: log.New(out, "FATAL: ", flags),
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.debug {
		l.debugLogger.Printf(format, v...)
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLogger.Printf(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.warnLogger.Printf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLogger.Printf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.fatalLogger.Fatalf(format, v...)
}
