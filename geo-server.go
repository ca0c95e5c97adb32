package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/d0rc/geo-locator/cmds"
	"github.com/d0rc/geo-locator/server"
	"github.com/d0rc/geo-locator/utils"
)

// geo-server answers "where was this photo taken" queries: clients post a
// normalized image tensor and get back the closest known street-level views

var configPath = flag.String("config", "config.yaml", "path to the configuration file")
var port = flag.Int("port", 0, "port to listen on, overrides server.port")
var host = flag.String("host", "", "host to listen at, overrides server.host")

func main() {
	flag.Parse()
	lg := utils.ConsoleInit("geo-srv")

	ctx, err := server.NewContextFromConfig(*configPath, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("error creating server context")
	}
	defer ctx.Close()

	if *port != 0 {
		ctx.Config.Server.Port = *port
	}
	if *host != "" {
		ctx.Config.Server.Host = *host
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = ctx.Start(sigCtx, func(ctx *server.Context) {
		workingHost := fmt.Sprintf("%s:%d", ctx.Config.Server.Host, ctx.Config.Server.Port)
		srv := &http.Server{
			Addr:              workingHost,
			Handler:           cmds.BuildRoutes(ctx),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-sigCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		ctx.Log.Info().Msgf("starting on: %s", workingHost)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctx.Log.Fatal().Err(err).Msg("error starting server")
		}
		ctx.Log.Info().Msg("server stopped")
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("error waiting for vector db")
	}
}
