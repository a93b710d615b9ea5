// Package main is the entry point for the entity API server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sennetconsortium/entity-api/bootstrap"
	"github.com/sennetconsortium/entity-api/config"
	"github.com/sennetconsortium/entity-api/core/schema"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "entity-api.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	validate := flag.Bool("validate", false, "Validate configuration and schema, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("entity-api %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if *validate {
		cfg, err := config.LoadWithFallback(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		sch, err := schema.ParseFile(cfg.Schema.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Schema invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration valid\n")
		fmt.Printf("  Neo4j: %s\n", cfg.Neo4j.URI)
		fmt.Printf("  Schema: %s\n", cfg.Schema.Path)
		fmt.Printf("  Entity types: %d\n", len(sch.EntityTypes()))
		os.Exit(0)
	}

	app, err := bootstrap.New(*configPath, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
