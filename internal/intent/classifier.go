// Package intent classifies student queries into a closed set of intents.
//
// Classification is pattern-first: a greeting check and four prioritized
// pattern groups settle most queries without any network traffic. Only queries
// no group recognizes are sent to a remote model for a one-word label.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Intent is the purpose of a user query.
type Intent string

const (
	Concept   Intent = "CONCEPT"
	Analysis  Intent = "ANALYSIS"
	Emotional Intent = "EMOTIONAL"
	Planning  Intent = "PLANNING"
	General   Intent = "GENERAL"
)

// All returns every intent in priority order, GENERAL last.
func All() []Intent {
	return []Intent{Planning, Emotional, Analysis, Concept, General}
}

// Valid reports whether i is one of the five intents.
func (i Intent) Valid() bool {
	switch i {
	case Concept, Analysis, Emotional, Planning, General:
		return true
	}
	return false
}

// Parse converts a label to an Intent, case-insensitively.
func Parse(s string) (Intent, error) {
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent %q", s)
	}
	return i, nil
}

// Source records which stage produced a classification.
type Source string

const (
	SourceGreeting      Source = "greeting"
	SourcePattern       Source = "pattern"
	SourceDisambiguated Source = "disambiguated"
	SourceRemote        Source = "remote"
	SourceDefault       Source = "default"
	SourceCaller        Source = "caller"
)

// Result is a classification with its provenance.
type Result struct {
	Intent Intent `json:"intent"`
	Source Source `json:"source"`
}

// Completer sends a single prompt to a model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// DefaultRemoteTimeout bounds the remote classification call.
const DefaultRemoteTimeout = 5 * time.Second

// Classifier assigns an Intent to a query. It is safe for concurrent use.
type Classifier struct {
	remote  Completer
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRemote sets the completer used for queries no pattern matches.
func WithRemote(c Completer) Option {
	return func(cl *Classifier) { cl.remote = c }
}

// WithTimeout bounds the remote call.
func WithTimeout(d time.Duration) Option {
	return func(cl *Classifier) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Classifier) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a classifier. Without WithRemote, unmatched queries are GENERAL.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		timeout: DefaultRemoteTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the intent for query. It never fails; any internal error
// resolves to General.
func (c *Classifier) Classify(ctx context.Context, query string) Intent {
	return c.ClassifyDetailed(ctx, query).Intent
}

// ClassifyDetailed is Classify with the stage that decided the result.
func (c *Classifier) ClassifyDetailed(ctx context.Context, query string) Result {
	if intent, source, ok := Match(query); ok {
		return Result{Intent: intent, Source: source}
	}
	if strings.TrimSpace(query) == "" {
		return Result{Intent: General, Source: SourceDefault}
	}
	return c.classifyRemote(ctx, query)
}

// Match runs only the local stages: greeting check and pattern groups.
func Match(query string) (Intent, Source, bool) {
	normalized := normalize(query)
	if normalized == "" {
		return "", "", false
	}
	if isGreeting(normalized) {
		return General, SourceGreeting, true
	}
	return matchPatterns(normalized)
}

func (c *Classifier) classifyRemote(ctx context.Context, query string) Result {
	if c.remote == nil {
		return Result{Intent: General, Source: SourceDefault}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.remote.Complete(ctx, buildPrompt(query))
	if err != nil {
		c.logger.Debug("remote intent classification failed", "error", err)
		return Result{Intent: General, Source: SourceDefault}
	}

	intent, ok := ParseLabel(reply)
	if !ok {
		c.logger.Debug("unparseable intent label", "reply", truncate(reply, 64))
		return Result{Intent: General, Source: SourceDefault}
	}
	return Result{Intent: intent, Source: SourceRemote}
}

const classificationPrompt = `Classify the student's message into exactly one category.

CONCEPT   - asks to explain a subject, topic, definition or method
ANALYSIS  - asks about their own scores, marks, ranks or academic performance
EMOTIONAL - expresses stress, anxiety, sadness or needs encouragement
PLANNING  - asks for a study plan, schedule, goals or preparation strategy
GENERAL   - anything else

Reply with the category name only.

Message: %s`

func buildPrompt(query string) string {
	return fmt.Sprintf(classificationPrompt, strings.TrimSpace(query))
}

// ParseLabel extracts an intent from a model reply. An exact label match wins;
// otherwise the first label contained in the reply, in priority order, is used.
func ParseLabel(reply string) (Intent, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(reply))
	cleaned = strings.Trim(cleaned, " \t\r\n.,:;!?\"'`*_")
	if cleaned == "" {
		return "", false
	}

	if i := Intent(cleaned); i.Valid() {
		return i, true
	}
	for _, i := range All() {
		if strings.Contains(cleaned, string(i)) {
			return i, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
