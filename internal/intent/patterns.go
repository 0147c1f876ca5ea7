package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	greetingRegex = regexp.MustCompile(`^(hi+|hello+|hey+|hiya|howdy|yo|sup|hola|namaste|thanks|thank you|thank u|thx|ty|cheers|ok|okay|cool|great|nice|bye|goodbye|see you|good (morning|afternoon|evening|night))( there| all| everyone| so much| a lot)?[\s!.?,:)]*$`)

	planningRegex = regexp.MustCompile(`\b(plan|plans|planning|planner|schedule|timetable|roadmap|checklist|to-?do|routine|deadline|deadlines|milestones?|revision plan|study plan|prepare for|preparation strategy|how should i (study|prepare|revise)|organi[sz]e my|set (a )?goals?)\b`)

	emotionalRegex = regexp.MustCompile(`\b(stress|stressed|stressful|anxious|anxiety|worried|worry|overwhelmed|overwhelming|depressed|depressing|sad|upset|scared|afraid|nervous|lonely|frustrated|frustrating|demotivated|unmotivated|hopeless|burn(ed|t)? out|burnout|give up|giving up|cry|crying|panic|pressure|disappointed|ashamed|feel(ing)? (bad|low|down|lost|like a failure|stupid|useless))\b`)

	analysisRegex = regexp.MustCompile(`\b(analy[sz]e|analysis|performance|trend|trends|compare|comparison|progress|improvement|improving|weak(est|ness|nesses)?|strong(est|er)?|strength|strengths|report card|breakdown|statistics|insights?|how am i doing|how did i do)\b`)

	conceptRegex = regexp.MustCompile(`\b(explain|explanation|what is|what are|what's|whats|define|definition|meaning of|how does|how do|why does|why do|why is|why are|why did|concept|theory|understand|teach me|example of|examples of|difference between|derive|derivation|proof|formula|solve)\b`)

	scoreVocabularyRegex = regexp.MustCompile(`\b(marks?|scores?|scored|scoring|grades?|graded|rank|ranks|ranked|ranking|percentile|percentage|gpa|cgpa|result|results)\b`)

	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// patternGroup pairs an intent with the expression that selects it.
type patternGroup struct {
	intent Intent
	re     *regexp.Regexp
}

// patternGroups is checked in order; the first match wins.
var patternGroups = []patternGroup{
	{intent: Planning, re: planningRegex},
	{intent: Emotional, re: emotionalRegex},
	{intent: Analysis, re: analysisRegex},
	{intent: Concept, re: conceptRegex},
}

// normalize folds case and collapses whitespace.
func normalize(query string) string {
	folded := cases.Fold().String(query)
	folded = strings.ReplaceAll(folded, "’", "'")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(folded, " "))
}

func isGreeting(normalized string) bool {
	return greetingRegex.MatchString(normalized)
}

// matchPatterns runs the pattern groups against a normalized query.
func matchPatterns(normalized string) (Intent, Source, bool) {
	for _, group := range patternGroups {
		if !group.re.MatchString(normalized) {
			continue
		}
		if group.intent == Concept && scoreVocabularyRegex.MatchString(normalized) {
			return Analysis, SourceDisambiguated, true
		}
		return group.intent, SourcePattern, true
	}
	return "", "", false
}
