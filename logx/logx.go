// Package logx is the ledger core's structured logger: every subsystem logs
// through it, tagged by category, rather than calling fmt.Println directly.
// Output rotates through gopkg.in/natefinch/lumberjack.v2, matching the
// teacher's rotating-file logger.
package logx

import (
	"fmt"
	"log"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

// Options configures the rotating log file. Zero-value Options are sane
// defaults, unlike the teacher's env-var-or-panic setup: a library package
// should not crash a caller's test run for lacking an environment variable.
type Options struct {
	Filename string // default "./logs/ledgerd.log"
	MaxSizeMB int   // default 100
	MaxAgeDays int  // default 14
}

var (
	mu     sync.Mutex
	logger = log.New(defaultWriter(), "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

func defaultWriter() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename: "./logs/ledgerd.log",
		MaxSize:  100,
		MaxAge:   14,
	}
}

// Configure replaces the active logger's output, applying defaults for any
// zero field. Intended to be called once at startup from config loading.
func Configure(opt Options) {
	if opt.Filename == "" {
		opt.Filename = "./logs/ledgerd.log"
	}
	if opt.MaxSizeMB == 0 {
		opt.MaxSizeMB = 100
	}
	if opt.MaxAgeDays == 0 {
		opt.MaxAgeDays = 14
	}
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(&lumberjack.Logger{
		Filename: opt.Filename,
		MaxSize:  opt.MaxSizeMB,
		MaxAge:   opt.MaxAgeDays,
	}, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func printf(color, level, category, message string) {
	mu.Lock()
	defer mu.Unlock()
	logger.Printf("%s[%s][%s]%s: %s", color, level, category, ColorReset, message)
}

func Info(category string, content ...interface{}) {
	printf(ColorGreen, "INFO", category, fmt.Sprint(content...))
}

func Error(category string, content ...interface{}) {
	printf(ColorRed, "ERROR", category, fmt.Sprint(content...))
}

func Warn(category string, content ...interface{}) {
	printf(ColorYellow, "WARN", category, fmt.Sprint(content...))
}

func Debug(category string, content ...interface{}) {
	printf(ColorBlue, "DEBUG", category, fmt.Sprint(content...))
}

// Fatal logs at fatal severity without terminating the process: per
// SPEC_FULL.md §7, an invariant violation during apply is logged fatal but
// the node keeps running. Process-ending corruption is the caller's
// decision, made after it sees the returned error.
func Fatal(category string, content ...interface{}) {
	printf(ColorRed, "FATAL", category, fmt.Sprint(content...))
}

// Errorf logs a formatted error message and returns it, matching the
// teacher's log-and-return-err convenience.
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
