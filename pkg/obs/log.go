// Package obs wires the core's Logger and SchedulerObserver interfaces
// to real backends: zerolog for structured logging and
// prometheus/client_golang for metrics.
package obs

import (
	"os"

	"github.com/rs/zerolog"

	ecs "github.com/hollowforge/simcore"
)

// ZerologAdapter implements ecs.Logger over a zerolog.Logger.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter builds the default console-writer-backed logger used
// by cmd/simd.
func NewZerologAdapter() ZerologAdapter {
	return ZerologAdapter{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}
}

// WrapZerolog adapts a caller-supplied zerolog.Logger.
func WrapZerolog(logger zerolog.Logger) ZerologAdapter {
	return ZerologAdapter{logger: logger}
}

func (a ZerologAdapter) With(key string, value any) ecs.Logger {
	return ZerologAdapter{logger: a.logger.With().Interface(key, value).Logger()}
}

func (a ZerologAdapter) Info(msg string, args ...any) {
	a.logger.Info().Fields(argsToFields(args)).Msg(msg)
}

func (a ZerologAdapter) Error(msg string, args ...any) {
	a.logger.Error().Fields(argsToFields(args)).Msg(msg)
}

func argsToFields(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

var _ ecs.Logger = ZerologAdapter{}
