package reactor

import (
	"os"

	"github.com/rs/zerolog"
)

// log is the package-level logger used throughout the reactor core. It
// defaults to a human-readable console writer at Info level; embedders
// that want structured JSON or a different level can replace it with
// SetLogger.
var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// SetLogger replaces the package-level logger. Call it before Start. The
// reactor logs only runtime warnings through it (poll and poller failures,
// wakeup failures, failed accepts); setup failures (socket/epoll/eventfd/
// timerfd creation, bind) are returned to the caller as errors instead.
func SetLogger(l zerolog.Logger) {
	log = l
}
