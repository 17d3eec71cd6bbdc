package main

import (
	"github.com/allsafeASM/rmap/internal/app"
	"github.com/projectdiscovery/gologger"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		gologger.Fatal().Msgf("Failed to start: %v", err)
	}

	gologger.Info().Msg("rmap network scanner is running. Press Ctrl+C to exit.")
	if err := application.Start(); err != nil {
		gologger.Fatal().Msgf("Stopped with error: %v", err)
	}
}
