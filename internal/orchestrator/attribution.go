package orchestrator

import "fmt"

// Attribution returns the marker naming the responding model. The first
// form is used when the first tried candidate answered.
func Attribution(displayName string, wasFallback bool) string {
	if wasFallback {
		return fmt.Sprintf("_(fallback: original choice unavailable, responded via %s)_", displayName)
	}
	return fmt.Sprintf("_(answered by %s)_", displayName)
}

func annotate(text, displayName string, wasFallback bool) string {
	marker := Attribution(displayName, wasFallback)
	if text == "" {
		return marker
	}
	return text + "\n\n" + marker
}
