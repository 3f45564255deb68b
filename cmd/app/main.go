package main

import (
	"flag"
	"log"
	"os"

	"CoinPulse/internal/di"
	"CoinPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("coinpulse: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	log.Printf("coinpulse starting: env=%s cache=%s symbols=%v",
		cfg.Environment, cfg.Cache.Backend, cfg.Source.Symbols)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}
	return app.Run()
}
