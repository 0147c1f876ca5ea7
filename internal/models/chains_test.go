package models

import (
	"strings"
	"testing"
)

func TestDefaultChainConfigIsValid(t *testing.T) {
	reg := DefaultRegistry()
	table, err := NewChainTable(reg, DefaultChainConfig())
	if err != nil {
		t.Fatalf("NewChainTable: %v", err)
	}

	for _, task := range AllTaskCategories() {
		chain := table.Chain(task)
		if len(chain) == 0 {
			t.Fatalf("%s chain is empty", task)
		}
		last, _ := reg.Get(chain[len(chain)-1])
		if !last.IsStructured() {
			t.Errorf("%s chain ends in %s, want a structured model", task, last.ID)
		}
	}
}

func TestChainTable_ChainReturnsCopy(t *testing.T) {
	table, err := NewChainTable(DefaultRegistry(), DefaultChainConfig())
	if err != nil {
		t.Fatalf("NewChainTable: %v", err)
	}
	chain := table.Chain(TaskChat)
	chain[0] = "mutated"
	if table.Chain(TaskChat)[0] == "mutated" {
		t.Fatal("Chain must return a copy")
	}
}

func TestChainTable_SafetyNet(t *testing.T) {
	table, err := NewChainTable(DefaultRegistry(), DefaultChainConfig())
	if err != nil {
		t.Fatalf("NewChainTable: %v", err)
	}

	for _, task := range []TaskCategory{TaskAnalysis, TaskMath, TaskPlanning, TaskCoding} {
		if got := table.SafetyNet(task); got != ModelGeminiPro {
			t.Errorf("SafetyNet(%s) = %s, want %s", task, got, ModelGeminiPro)
		}
	}
	for _, task := range []TaskCategory{TaskChat, TaskCreative} {
		if got := table.SafetyNet(task); got != ModelGeminiFlashLite {
			t.Errorf("SafetyNet(%s) = %s, want %s", task, got, ModelGeminiFlashLite)
		}
	}
}

func TestNewChainTable_Validation(t *testing.T) {
	reg := DefaultRegistry()

	mutate := func(fn func(*ChainConfig)) ChainConfig {
		cfg := DefaultChainConfig()
		fn(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     ChainConfig
		wantErr string
	}{
		{
			name:    "missing category",
			cfg:     mutate(func(c *ChainConfig) { delete(c.Chains, TaskMath) }),
			wantErr: "math chain is empty",
		},
		{
			name:    "unknown model",
			cfg:     mutate(func(c *ChainConfig) { c.Chains[TaskChat] = []string{"ghost", ModelGeminiFlash} }),
			wantErr: "unknown model",
		},
		{
			name:    "chain ends in generic model",
			cfg:     mutate(func(c *ChainConfig) { c.Chains[TaskCoding] = []string{ModelGeminiPro, ModelQwenCoder} }),
			wantErr: "must end in a structured model",
		},
		{
			name:    "terminal must be structured",
			cfg:     mutate(func(c *ChainConfig) { c.TerminalModel = ModelLlamaChat }),
			wantErr: "terminal_model must be a structured model",
		},
		{
			name:    "reasoning model required",
			cfg:     mutate(func(c *ChainConfig) { c.ReasoningModel = "" }),
			wantErr: "reasoning_model is required",
		},
		{
			name:    "unknown category",
			cfg:     mutate(func(c *ChainConfig) { c.Chains["poetry"] = []string{ModelGeminiFlash} }),
			wantErr: "unknown task category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChainTable(reg, tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewChainTable_CanonicalizesAliases(t *testing.T) {
	cfg := DefaultChainConfig()
	cfg.Chains[TaskPlanning] = []string{"gemini-flash"}
	cfg.TerminalModel = "gemini"

	table, err := NewChainTable(DefaultRegistry(), cfg)
	if err != nil {
		t.Fatalf("NewChainTable: %v", err)
	}
	if got := table.Chain(TaskPlanning); got[0] != ModelGeminiFlash {
		t.Fatalf("Chain(planning)[0] = %s, want %s", got[0], ModelGeminiFlash)
	}
	if table.TerminalModel() != ModelGeminiFlash {
		t.Fatalf("TerminalModel() = %s, want %s", table.TerminalModel(), ModelGeminiFlash)
	}
}

func TestParseTaskCategory(t *testing.T) {
	if got, err := ParseTaskCategory(" Analysis "); err != nil || got != TaskAnalysis {
		t.Fatalf("ParseTaskCategory = %q, %v", got, err)
	}
	if _, err := ParseTaskCategory("poetry"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
