package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Timed logs the outcome of a named operation when the returned func is called
// with its error.
//
//	done := logger.Timed(ctx, "assign")
//	err := doAssign()
//	done(err)
func Timed(ctx context.Context, name string) func(err error) {
	started := time.Now()

	return func(err error) {
		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Str("operation", name).
				Dur("duration", time.Since(started)).
				Msg("operation failed")
			return
		}

		zerolog.Ctx(ctx).Info().
			Str("operation", name).
			Dur("duration", time.Since(started)).
			Msg("operation finished")
	}
}
