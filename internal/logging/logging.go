// Package logging constructs the application logger.
package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger writing to out at the given level. format is
// "json" or "console".
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", level, err)
	}

	switch format {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
