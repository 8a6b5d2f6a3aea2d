package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dgellow/docfront/internal"
	"github.com/dgellow/docfront/internal/config"
	"github.com/dgellow/docfront/internal/log"
)

var BuildVersion = "dev"

// writeDefaultConfig writes the -config-init template to path
func writeDefaultConfig(path string) error {
	data, err := json.MarshalIndent(config.DefaultConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// checkConfig prints the validation report for path to w
func checkConfig(w io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}
	result.Print(w, path)
	return result.Err()
}

// serve runs docfront until a signal arrives
func serve(cfg config.Config, path string) error {
	log.LogInfoWithFields("main", "Starting docfront", map[string]any{
		"version": BuildVersion,
		"config":  path,
	})

	ctx := context.Background()
	app, err := internal.NewDocFront(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create docfront: %w", err)
	}
	return app.Run(ctx)
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "write a starter config file to this path and exit")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()

	switch {
	case *help:
		flag.Usage()
	case *version:
		fmt.Println(BuildVersion)
	case *configInit != "":
		if err := writeDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
	case *conf == "":
		fmt.Fprintln(os.Stderr, "Error: -config flag is required")
		fmt.Fprintln(os.Stderr, "Run with -help for usage information")
		os.Exit(1)
	case *validate:
		if err := checkConfig(os.Stdout, *conf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		cfg, err := config.Load(*conf)
		if err != nil {
			log.LogError("Failed to load config: %v", err)
			os.Exit(1)
		}
		if err := serve(cfg, *conf); err != nil {
			log.LogError("%v", err)
			os.Exit(1)
		}
	}
}
