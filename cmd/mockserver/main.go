// Command mockserver runs the in-process channel server standalone, for
// trying a session against something local.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/mockserver"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg := config.ServerConfigFromEnv()

	server := mockserver.New(cfg, logger)
	if user, pass := os.Getenv("MOCKSERVER_USERNAME"), os.Getenv("MOCKSERVER_PASSWORD"); user != "" {
		server.AddAccount(user, pass)
	}
	svc := mockserver.NewService(server, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := svc.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := svc.ListenAndServe(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("mock channel server stopped")
	}
}
