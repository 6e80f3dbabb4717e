package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"slidenode/config"
	"slidenode/engine"
	"slidenode/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "slidenode.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "diagnostics HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open the node-local database (cache index + deck snapshot)
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create and start the engine
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Version:   version,
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}

	log.Printf("slidenode %s running (node=%s store=%s/%s)", version, cfg.NodeUUID, cfg.CouchURL, cfg.Database)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	eng.Stop()
}
