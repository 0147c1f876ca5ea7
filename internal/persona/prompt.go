package persona

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/scholar/internal/models"
)

// MaxSummaryRunes bounds the background and history sections of a prompt.
const MaxSummaryRunes = 4000

const truncationMarker = "\n[...truncated]"

// Context is the per-request material a persona prompt is built from. Callers
// summarize background and history before building the prompt.
type Context struct {
	Query          string
	Background     string
	HistorySummary string
	StudentName    string
	Style          models.ResponseStyle
}

// BuildSystemPrompt renders the persona's system instruction. It is a pure
// function of the profile and ctx.
func (p *Profile) BuildSystemPrompt(ctx Context) string {
	lines := make([]string, 0, 8)
	lines = append(lines, p.role)

	if name := strings.TrimSpace(ctx.StudentName); name != "" {
		lines = append(lines, fmt.Sprintf("The student's name is %s.", name))
	}

	if len(p.guidelines) > 0 {
		var b strings.Builder
		b.WriteString("Guidelines:")
		for _, g := range p.guidelines {
			b.WriteString("\n- ")
			b.WriteString(g)
		}
		lines = append(lines, b.String())
	}

	if style := styleLines(ctx.Style); len(style) > 0 {
		lines = append(lines, "Response style:\n- "+strings.Join(style, "\n- "))
	}

	if background := truncateSummary(ctx.Background); background != "" {
		lines = append(lines, fmt.Sprintf("Background about the student:\n%s", background))
	}

	if history := truncateSummary(ctx.HistorySummary); history != "" {
		lines = append(lines, fmt.Sprintf("Conversation so far:\n%s", history))
	}

	if len(p.tools) > 0 {
		names := make([]string, 0, len(p.tools))
		for _, t := range p.tools {
			names = append(names, t.Name)
		}
		lines = append(lines, fmt.Sprintf("Tools available: %s. Call a tool only when it clearly helps the answer.", strings.Join(names, ", ")))
	}

	return strings.TrimSpace(strings.Join(lines, "\n\n"))
}

func styleLines(s models.ResponseStyle) []string {
	var out []string
	if s.Concise {
		out = append(out, "Keep the answer short.")
	}
	if tone := strings.TrimSpace(s.Tone); tone != "" {
		out = append(out, fmt.Sprintf("Use a %s tone.", tone))
	}
	if lang := strings.TrimSpace(s.Language); lang != "" {
		out = append(out, fmt.Sprintf("Reply in %s.", lang))
	}
	return out
}

func truncateSummary(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= MaxSummaryRunes {
		return s
	}
	return string(r[:MaxSummaryRunes]) + truncationMarker
}
