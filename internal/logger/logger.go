// Package logger provides the zerolog logger shared by the server, the queue
// consumers and the decision engines.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a JSON logger writing to stdout tagged with the service name.
// Use .Stack() on error events to include a stack trace.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(serviceName string, w io.Writer) zerolog.Logger {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// Level parses APP_ENV-style environment names into a minimum level:
// production logs info and above, everything else logs debug.
func Level(env string) zerolog.Level {
	switch env {
	case "prod", "production":
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
