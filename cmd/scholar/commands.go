package main

import (
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd(load configLoader) *cobra.Command {
	var (
		debug   bool
		address string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the scholar HTTP server.

The server loads the configuration, opens the outcome ledger, wires the
classifier, personas and orchestrator, and serves the /v1 API alongside
/healthz and /metrics. Preferences and provider keys are reloaded when the
config file changes. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default config
  scholar serve

  # Start on another port with debug logging
  scholar serve --config /etc/scholar/prod.yaml --address :9090 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, load, serveOptions{debug: debug, address: address, watch: !noWatch})
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&address, "address", "", "Listen address (overrides server.address)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the config file on change")
	return cmd
}

// =============================================================================
// Request Commands
// =============================================================================

func buildAskCmd(load configLoader) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question through the full pipeline",
		Example: `  scholar ask "What is the derivative of x^2 sin x?"
  scholar ask --intent PLANNING --student Ada "Plan my week before the physics exam"
  scholar ask --json-output "Summarise photosynthesis" | jq .responded_by`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, load, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.intent, "intent", "", "Skip classification and use this intent")
	cmd.Flags().StringVar(&opts.student, "student", "", "Student name used in the system prompt")
	cmd.Flags().StringVar(&opts.background, "background", "", "Background facts about the student")
	cmd.Flags().StringVar(&opts.history, "history", "", "Summary of the conversation so far")
	cmd.Flags().StringVar(&opts.model, "model", "", "Preferred model for this request")
	cmd.Flags().BoolVar(&opts.jsonReply, "json", false, "Ask the model for a JSON reply")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json-output", false, "Print the full answer as JSON")
	return cmd
}

func buildClassifyCmd(load configLoader) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "classify <question>",
		Short: "Show the intent and persona a question routes to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, load, args, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Use only the pattern rules, never the remote classifier")
	return cmd
}

func buildCandidatesCmd(load configLoader) *cobra.Command {
	var (
		task  string
		model string
	)

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List the candidate models for a task in walk order",
		Example: `  scholar candidates --task math
  scholar candidates --task creative --model gemini-2.5-pro`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandidates(cmd, load, task, model)
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "chat", "Task category")
	cmd.Flags().StringVar(&model, "model", "", "Preferred model override for the task")
	return cmd
}

func buildModelsCmd(load configLoader) *cobra.Command {
	var (
		provider string
		family   string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, load, provider, family)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only models served by this provider")
	cmd.Flags().StringVar(&family, "family", "", "Only models of this family (structured, generic_chat)")
	return cmd
}

func buildOutcomesCmd(load configLoader) *cobra.Command {
	var (
		limit int
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Show recent request outcomes from the ledger",
		Long: `Show recent request outcomes and fallback statistics.

Requires a persistent ledger (ledger.driver sqlite or postgres).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcomes(cmd, load, limit, since)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window for the statistics")
	return cmd
}

// =============================================================================
// Admin Commands
// =============================================================================

func buildTokenCmd(load configLoader) *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue a JWT signed with server.jwt_secret.

When no secret is configured and stdin is a terminal, the secret is read
without echo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, load, opts)
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "User email")
	cmd.Flags().StringVar(&opts.name, "name", "", "User display name")
	cmd.Flags().DurationVar(&opts.expiry, "expiry", 0, "Token lifetime (overrides server.token_expiry)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func buildConfigCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigValidate(cmd, load)
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON Schema of the configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSchema(cmd)
			},
		},
	)
	return cmd
}
