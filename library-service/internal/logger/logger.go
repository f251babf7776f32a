package logger

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	log  zerolog.Logger
)

// Get returns the process logger. The debug flag is honoured by the first call only.
func Get(debug ...bool) *zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		level := zerolog.InfoLevel
		if len(debug) > 0 && debug[0] {
			level = zerolog.DebugLevel
			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
				Level(level).With().Timestamp().Caller().Logger()
			return
		}
		log = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	})
	return &log
}
