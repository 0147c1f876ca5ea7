package intent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type spyCompleter struct {
	reply  string
	err    error
	calls  atomic.Int32
	prompt atomic.Value
}

func (s *spyCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	s.prompt.Store(prompt)
	return s.reply, s.err
}

func TestClassify_Patterns(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		want       Intent
		wantSource Source
	}{
		{"greeting", "hello", General, SourceGreeting},
		{"greeting with punctuation", "Hello there!", General, SourceGreeting},
		{"thanks", "thank you so much", General, SourceGreeting},
		{"concept", "What is photosynthesis?", Concept, SourcePattern},
		{"concept with score vocabulary", "Explain why my marks dropped", Analysis, SourceDisambiguated},
		{"emotional wins over score vocabulary", "I'm so stressed about my marks", Emotional, SourcePattern},
		{"analysis", "Compare my physics performance this term", Analysis, SourcePattern},
		{"planning", "Make me a study plan for finals", Planning, SourcePattern},
		{"planning wins over emotional", "I'm stressed, can you make a schedule?", Planning, SourcePattern},
		{"emotional wins over concept", "I feel stupid, explain derivatives again", Emotional, SourcePattern},
		{"case and whitespace folded", "  EXPLAIN   the   theory of relativity ", Concept, SourcePattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyCompleter{reply: "GENERAL"}
			c := New(WithRemote(spy))

			got := c.ClassifyDetailed(context.Background(), tt.query)
			if got.Intent != tt.want {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.want)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", got.Source, tt.wantSource)
			}
			if n := spy.calls.Load(); n != 0 {
				t.Errorf("remote called %d times, want 0", n)
			}
		})
	}
}

func TestClassify_RemoteFallback(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		want       Intent
		wantSource Source
	}{
		{"exact label", "PLANNING", nil, Planning, SourceRemote},
		{"lower case with punctuation", "concept.", nil, Concept, SourceRemote},
		{"label inside sentence", "The category is EMOTIONAL", nil, Emotional, SourceRemote},
		{"priority when several labels appear", "ANALYSIS or PLANNING", nil, Planning, SourceRemote},
		{"unrecognized reply", "banana", nil, General, SourceDefault},
		{"empty reply", "   ", nil, General, SourceDefault},
		{"remote error", "", errors.New("quota exceeded"), General, SourceDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyCompleter{reply: tt.reply, err: tt.err}
			c := New(WithRemote(spy))

			got := c.ClassifyDetailed(context.Background(), "tell me a joke about cats")
			if got.Intent != tt.want || got.Source != tt.wantSource {
				t.Fatalf("ClassifyDetailed() = %+v, want {%s %s}", got, tt.want, tt.wantSource)
			}
			if n := spy.calls.Load(); n != 1 {
				t.Fatalf("remote called %d times, want 1", n)
			}
		})
	}
}

func TestClassify_RemotePromptListsAllLabels(t *testing.T) {
	spy := &spyCompleter{reply: "GENERAL"}
	New(WithRemote(spy)).Classify(context.Background(), "tell me a joke about cats")

	prompt, _ := spy.prompt.Load().(string)
	for _, i := range All() {
		if !strings.Contains(prompt, string(i)) {
			t.Errorf("prompt missing label %s", i)
		}
	}
	if !strings.Contains(prompt, "tell me a joke about cats") {
		t.Error("prompt missing the query")
	}
}

func TestClassify_NoRemote(t *testing.T) {
	c := New()
	if got := c.ClassifyDetailed(context.Background(), "tell me a joke about cats"); got.Intent != General || got.Source != SourceDefault {
		t.Fatalf("ClassifyDetailed() = %+v, want GENERAL/default", got)
	}
}

func TestClassify_EmptyQuery(t *testing.T) {
	spy := &spyCompleter{reply: "CONCEPT"}
	c := New(WithRemote(spy))
	if got := c.Classify(context.Background(), "   "); got != General {
		t.Fatalf("Classify(blank) = %s, want GENERAL", got)
	}
	if spy.calls.Load() != 0 {
		t.Fatal("blank query must not reach the remote model")
	}
}

func TestClassify_RemoteTimeout(t *testing.T) {
	slow := CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := New(WithRemote(slow), WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := c.Classify(context.Background(), "tell me a joke about cats")
	if got != General {
		t.Fatalf("Classify() = %s, want GENERAL", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("remote timeout not applied, took %s", elapsed)
	}
}

func TestParseLabel(t *testing.T) {
	if _, ok := ParseLabel(""); ok {
		t.Fatal("empty reply should not parse")
	}
	if got, ok := ParseLabel("**Analysis**"); !ok || got != Analysis {
		t.Fatalf("ParseLabel(**Analysis**) = %s, %v", got, ok)
	}
}

func TestParse(t *testing.T) {
	if got, err := Parse(" planning "); err != nil || got != Planning {
		t.Fatalf("Parse = %s, %v", got, err)
	}
	if _, err := Parse("SMALLTALK"); err == nil {
		t.Fatal("expected error for unknown intent")
	}
}
