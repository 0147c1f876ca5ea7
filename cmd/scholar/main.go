// Package main provides the CLI entry point for scholar, the request
// orchestration layer of the study assistant.
//
// # Basic Usage
//
// Start the HTTP server:
//
//	scholar serve --config scholar.yaml
//
// Ask a question from the terminal:
//
//	scholar ask "Explain the chain rule with an example"
//
// Inspect routing without calling a provider:
//
//	scholar classify "Make me a revision plan for finals"
//	scholar candidates --task math
//
// # Environment Variables
//
//   - SCHOLAR_CONFIG: Path to configuration file (default: scholar.yaml)
//   - GEMINI_API_KEY / GOOGLE_API_KEY: key for the structured (Gemini) models
//   - OPENROUTER_API_KEY, GROQ_API_KEY: keys for the generic-chat providers
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/scholar/internal/config"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "scholar.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "scholar",
		Short: "Scholar - model routing for the study assistant",
		Long: `Scholar classifies a student's question, picks a tutoring persona and
walks an ordered list of candidate models until one answers, telling the
student when a fallback model replied.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file (or set SCHOLAR_CONFIG)")

	load := func() (*config.Config, string, error) {
		return loadConfig(configPath)
	}

	rootCmd.AddCommand(
		buildServeCmd(load),
		buildAskCmd(load),
		buildClassifyCmd(load),
		buildCandidatesCmd(load),
		buildModelsCmd(load),
		buildOutcomesCmd(load),
		buildTokenCmd(load),
		buildConfigCmd(load),
	)
	return rootCmd
}

// configLoader returns the loaded config and the path it came from.
type configLoader func() (*config.Config, string, error)

// resolveConfigPath prefers the flag, then SCHOLAR_CONFIG, then the default
// file name. explicit is false only for the default.
func resolveConfigPath(path string) (resolved string, explicit bool) {
	if p := strings.TrimSpace(path); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(os.Getenv(config.EnvConfigPath)); p != "" {
		return p, true
	}
	return defaultConfigName, false
}

// loadConfig loads the resolved config. A missing default file yields the
// built-in defaults; a missing explicit file is an error.
func loadConfig(path string) (*config.Config, string, error) {
	resolved, explicit := resolveConfigPath(path)
	cfg, err := config.Load(resolved)
	if err == nil {
		return cfg, resolved, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "", nil
	}
	return nil, resolved, err
}
