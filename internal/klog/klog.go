// Package klog is the kernel's structured boot and trace log, standing
// in for the teacher's bare banners (main.go's `fmt.Printf("found %v
// CPUs\n", ncpu)`, `fmt.Printf("done! %v APs found (%v joined)\n",
// ...)`) and its `panic(fmt.Sprintf(...))` idiom for fatal conditions.
// Every call site keeps the teacher's terse, one-line-per-event shape;
// only the sink changes, from an interpolated string to a structured
// zerolog event (spec.md §2's ambient logging layer).
package klog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// SetOutput redirects every subsequent log line to w, in place of the
// default os.Stdout sink. Tests use this to capture boot trace output
// instead of asserting against the process's real stdout.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// SetLevel parses and applies the minimum level logged globally,
// matching config.Config's LogLevel field.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Log returns the package logger so a call site can chain field
// builders the way zerolog is meant to be used
// (klog.Log().Info().Int("ncpu", n).Msg("found cpus")), rather than
// this package wrapping every possible field combination itself.
func Log() *zerolog.Logger { return &logger }

// Boot logs a one-line subsystem-initialization banner at info level
// (grounded on main.go's init-sequence banners: cpus_start's
// "found %v CPUs"/"done! %v APs found (%v joined)", fs_init's mount
// banners).
func Boot(subsystem, msg string) {
	logger.Info().Str("subsystem", subsystem).Msg(msg)
}

// Panic logs msg at error level tagged with subsystem, then panics
// with msg, mirroring the teacher's panic(fmt.Sprintf("...")) idiom
// (e.g. main.go's panic("pid exists"), panic("bad circbuf size")) but
// routing the message through the configured sink first.
func Panic(subsystem, msg string) {
	logger.Error().Str("subsystem", subsystem).Msg(msg)
	panic(msg)
}
