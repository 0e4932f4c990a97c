// Command echo is a minimal demo server: it echoes every line it
// receives back to the sender and logs connect/disconnect events. It
// exists to exercise reactor.TcpServer end to end.
package main

import (
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lins-zhou/gorev/buffer"
	"github.com/lins-zhou/gorev/reactor"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2269", "listen address")
	threads := flag.Int("threads", 4, "worker loop count")
	reusePort := flag.Bool("reuseport", false, "enable SO_REUSEPORT")
	idleSec := flag.Int("idle-timeout", 60, "seconds of inactivity before a connection is released")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	base, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatal().Err(err).Msg("echo: failed to create base loop")
	}

	srv, err := reactor.NewTcpServer(base, "tcp", *addr,
		reactor.WithThreadCount(*threads),
		reactor.WithReusePort(*reusePort),
		reactor.WithIdleTimeout(*idleSec),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("echo: failed to bind listener")
	}

	var count int64
	srv.SetConnectedCallback(func(c *reactor.Connection) {
		n := atomic.AddInt64(&count, 1)
		log.Info().Uint64("conn", c.ID()).Int64("total", n).Msg("echo: connected")
	})
	srv.SetMessageCallback(func(c *reactor.Connection, in *buffer.Buffer) {
		for {
			line := in.ReadLine()
			if line == nil {
				return
			}
			c.Send(line)
		}
	})
	srv.SetClosedCallback(func(c *reactor.Connection) {
		n := atomic.AddInt64(&count, -1)
		log.Info().Uint64("conn", c.ID()).Int64("total", n).Msg("echo: disconnected")
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("echo: shutting down")
		srv.Stop()
	}()

	log.Info().Str("addr", *addr).Int("threads", *threads).Msg("echo: listening")
	srv.Start()
}
