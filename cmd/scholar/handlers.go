package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/scholar/internal/assistant"
	"github.com/haasonsaas/scholar/internal/auth"
	"github.com/haasonsaas/scholar/internal/config"
	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/orchestrator"
)

// =============================================================================
// Ask / Classify
// =============================================================================

type askOptions struct {
	intent     string
	student    string
	background string
	history    string
	model      string
	jsonReply  bool
	jsonOutput bool
}

func runAsk(cmd *cobra.Command, load configLoader, args []string, opts askOptions) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}

	q := assistant.Query{
		Text:           strings.Join(args, " "),
		Background:     opts.background,
		HistorySummary: opts.history,
		StudentName:    opts.student,
		JSONExpected:   opts.jsonReply,
	}
	if opts.intent != "" {
		if q.Intent, err = intent.Parse(opts.intent); err != nil {
			return err
		}
	}

	prefs := cfg.Preferences
	if opts.model != "" {
		for _, task := range models.AllTaskCategories() {
			prefs = prefs.WithOverride(task, opts.model)
		}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	answer, err := a.assistant.Ask(ctx, q, prefs, cfg.Credentials())
	if err != nil {
		if ex, ok := orchestrator.GetExhausted(err); ok {
			printExhausted(cmd.ErrOrStderr(), ex)
			return errors.New(orchestrator.UserMessage(err))
		}
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return printJSON(out, answer)
	}
	fmt.Fprintln(out, answer.Text)
	if isTerminal(out) {
		fmt.Fprintf(out, "\n[%s via %s | %s | %s", answer.Intent, answer.Source, answer.Persona, answer.RespondedBy)
		if answer.WasFallback {
			fmt.Fprintf(out, " | fallback from %s", answer.FirstChoice)
		}
		fmt.Fprintf(out, " | %s]\n", answer.Duration.Round(time.Millisecond))
		for _, call := range answer.ToolCalls {
			fmt.Fprintf(out, "tool %s %s\n", call.Name, call.Arguments)
		}
	}
	return nil
}

func printExhausted(w io.Writer, ex *orchestrator.AllCandidatesExhausted) {
	for _, at := range ex.Attempts {
		fmt.Fprintf(w, "  %s: %s\n", at.Model, at.Reason)
	}
	if len(ex.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped (no credentials): %s\n", strings.Join(ex.Skipped, ", "))
	}
}

func runClassify(cmd *cobra.Command, load configLoader, args []string, offline bool) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}
	if offline {
		disabled := false
		cfg.Classifier.Remote = &disabled
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{WithoutLedger: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res, profile := a.assistant.Classify(ctx, strings.Join(args, " "))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "intent:  %s (%s)\n", res.Intent, res.Source)
	fmt.Fprintf(out, "persona: %s\n", profile.ID)
	fmt.Fprintf(out, "task:    %s\n", profile.Task)
	if profile.PinnedModel != "" {
		fmt.Fprintf(out, "model:   %s\n", profile.PreferredModel(cfg.Preferences))
	}
	return nil
}

// =============================================================================
// Catalog
// =============================================================================

func runCandidates(cmd *cobra.Command, load configLoader, taskName, model string) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}
	task, err := models.ParseTaskCategory(taskName)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	chains, err := models.NewChainTable(reg, cfg.ChainConfig())
	if err != nil {
		return err
	}

	prefs := cfg.Preferences
	if model != "" {
		prefs = prefs.WithOverride(task, model)
	}
	creds := cfg.Credentials()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tMODEL\tPROVIDER\tFAMILY\tCREDENTIALS")
	for i, id := range models.NewResolver(reg, chains).Resolve(task, prefs) {
		desc, _ := reg.Get(id)
		_, ok := creds.Lookup(desc.Provider)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, id, desc.Provider, desc.Family, yesNo(ok))
	}
	return w.Flush()
}

func runModels(cmd *cobra.Command, load configLoader, provider, family string) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	filter := &models.Filter{}
	if provider != "" {
		filter.Providers = []string{provider}
	}
	if family != "" {
		filter.Families = []models.Family{models.Family(family)}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tFAMILY\tTIER\tTOOLS\tJSON")
	for _, m := range reg.List(filter) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.DisplayName(), m.Provider, m.Family, m.CostTier,
			yesNo(m.SupportsStructuredTools), yesNo(m.SupportsJSONMode))
	}
	return w.Flush()
}

// =============================================================================
// Outcomes
// =============================================================================

func runOutcomes(cmd *cobra.Command, load configLoader, limit int, since time.Duration) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}
	if strings.EqualFold(cfg.Ledger.Driver, "memory") {
		return errMemoryLedger
	}

	ctx := cmd.Context()
	store, err := openLedger(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}
	stats, err := store.Stats(ctx, time.Now().Add(-since))
	if err != nil {
		return fmt.Errorf("outcome stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Last %s: %d requests, %d answered, %d fallbacks (%.1f%%), %d exhausted\n\n",
		since, stats.Total, stats.Succeeded, stats.Fallbacks, stats.FallbackRate()*100, stats.Exhausted)

	if len(records) == 0 {
		fmt.Fprintln(out, "No outcomes recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tINTENT\tTASK\tRESPONDED BY\tFALLBACK\tATTEMPTS\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Intent, r.Task,
			r.RespondedBy, yesNo(r.WasFallback), r.AttemptCount, r.ErrorSummary)
	}
	return w.Flush()
}

// =============================================================================
// Token / Config
// =============================================================================

type tokenOptions struct {
	userID string
	email  string
	name   string
	expiry time.Duration
}

func runToken(cmd *cobra.Command, load configLoader, opts tokenOptions) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}

	authCfg := cfg.AuthConfig()
	if opts.expiry > 0 {
		authCfg.TokenExpiry = opts.expiry
	}
	if authCfg.JWTSecret == "" {
		authCfg.JWTSecret = promptSecret(cmd, "JWT secret")
	}
	if authCfg.JWTSecret == "" {
		return errors.New("server.jwt_secret is not set")
	}

	token, err := auth.NewService(authCfg).GenerateJWT(&auth.User{
		ID:    opts.userID,
		Email: opts.email,
		Name:  opts.name,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// promptSecret reads a secret without echo when stdin is a terminal.
func promptSecret(cmd *cobra.Command, label string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	text, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(string(text))
}

func runConfigValidate(cmd *cobra.Command, load configLoader) error {
	cfg, path, err := load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintf(out, "No %s found; using built-in defaults.\n", defaultConfigName)
		return nil
	}
	fmt.Fprintf(out, "%s is valid (version %d, ledger %s, %d configured models).\n",
		path, cfg.Version, cfg.Ledger.Driver, len(cfg.Models))
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// =============================================================================
// Output helpers
// =============================================================================

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
