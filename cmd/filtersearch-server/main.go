package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"filterfinder/internal/app"
	"filterfinder/internal/config"
)

func main() {
	configFile := flag.String("config", "", "YAML config file (overrides "+config.ConfigFileEnv+")")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", config.AppName, config.AppVersion)
		return
	}
	if *configFile != "" {
		os.Setenv(config.ConfigFileEnv, *configFile)
	}

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := application.Run(); err != nil {
		slog.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
