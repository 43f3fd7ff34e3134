package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"prop-controller/internal/agent"
	"prop-controller/internal/config"
)

// These variables are set by the build script.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.json", "path to the configuration file")
	mediaDir := pflag.String("media-dir", "", "override the media directory")
	pflag.Parse()

	log.Printf("Starting prop controller agent version: %s, commit: %s, built: %s", version, commit, date)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mediaDir != "" {
		cfg.Playback.MediaDir = *mediaDir
	}

	store := config.NewStore(*configPath, cfg)
	a := agent.NewAgent(store, agent.Options{})

	go a.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	a.Shutdown()
	log.Println("Agent shut down gracefully.")
}
