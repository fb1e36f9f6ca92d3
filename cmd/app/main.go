package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"FinResolve/internal/di"
	"FinResolve/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *check {
		fmt.Printf("%s: ok (%s)\n", *configPath, features(cfg))
		return
	}
	log.Printf("env=%s %s", cfg.Environment, features(cfg))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT or SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func features(cfg *config.Config) string {
	return fmt.Sprintf("redis=%t clickhouse=%t kafka=%t jobs=%t oracle=%t",
		cfg.Redis.Enabled, cfg.ClickHouse.Enabled, cfg.Kafka.Enabled, cfg.Kafka.Jobs.Enabled,
		cfg.Sources.Oracle.APIKey != "")
}
