// Package logging writes leveled messages through the standard logger,
// optionally into a size-rotated log file.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
)

var (
	mu      sync.Mutex
	rotated *lumberjack.Logger
	verbose atomic.Bool
)

// Config selects where log messages go.
type Config struct {
	Logfile string
	MaxSize int // megabytes
	MaxAge  int // days
}

// SetLogger sends log messages to a rotating log file. Without a log file
// messages keep going to stderr.
func (c *Config) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}

	mu.Lock()
	if rotated != nil {
		rotated.Close()
	}
	rotated = l
	mu.Unlock()
	log.SetOutput(l)
}

// SetVerbose toggles Debug level messages.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether Debug level messages are written.
func Verbose() bool {
	return verbose.Load()
}

// Debugf formats its arguments analogous to fmt.Printf and records the text
// at Debug level. Nothing is written unless verbose.
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		log.Printf(" DEBUG "+format, args...)
	}
}

// Infof is like Debugf, but at Info level and written regardless of verbosity.
func Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

// Warningf is like Infof, but at Warning level.
func Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

// Errorf is like Infof, but at Error level.
func Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

// Shutdown closes the rotating log file, if any, and returns logging to stderr.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotated == nil {
		return
	}
	log.SetOutput(os.Stderr)
	rotated.Close()
	rotated = nil
}

// Count renders n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Bytes renders a byte size such as "83 MB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
