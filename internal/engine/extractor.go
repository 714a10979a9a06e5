package engine

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/scrypster/chronicle/internal/llm"
	"github.com/scrypster/chronicle/pkg/types"
)

// Facts is the structured reading of one piece of narration.
type Facts struct {
	Kind            types.MemoryKind `json:"kind"`
	EmotionalWeight float64          `json:"emotional_weight"`
	EmotionalTags   []string         `json:"emotional_tags,omitempty"`
	ThematicTags    []string         `json:"thematic_tags,omitempty"`
	Participants    []string         `json:"participants,omitempty"`
	Location        string           `json:"location,omitempty"`
}

// Payload renders the facts that have no dedicated record field.
func (f Facts) Payload() map[string]any {
	p := map[string]any{}
	if len(f.Participants) > 0 {
		p["participants"] = slices.Clone(f.Participants)
	}
	if f.Location != "" {
		p["location"] = f.Location
	}
	if len(p) == 0 {
		return nil
	}
	return p
}

// FactExtractor turns free text into structured facts.
type FactExtractor interface {
	Extract(ctx context.Context, text string) (Facts, error)
}

var (
	kindPatterns = []struct {
		kind types.MemoryKind
		re   *regexp.Regexp
	}{
		{types.KindCombat, regexp.MustCompile(`(?i)\b(attack\w*|fought|fight\w*|sword|blade|arrow\w*|wound\w*|stab\w*|slain|slay\w*|ambush\w*|battle\w*|strik\w*|struck)\b`)},
		{types.KindDecision, regexp.MustCompile(`(?i)\b(decid\w*|chose|choose|choos\w*|vow\w*|swore|promis\w*|agreed|refus\w*)\b`)},
		{types.KindDiscovery, regexp.MustCompile(`(?i)\b(found|discover\w*|uncover\w*|reveal\w*|learn\w*|realiz\w*|notic\w*|secret)\b`)},
		{types.KindRelationship, regexp.MustCompile(`(?i)\b(friend\w*|trust\w*|betray\w*|ally|allies|alliance|love[sd]?|kiss\w*|forgiv\w*|rival\w*)\b`)},
		{types.KindDialogue, regexp.MustCompile(`(?i)(\b(said|says|asked|whisper\w*|shout\w*|told|replied|answer\w*)\b|"[^"]{3,}")`)},
		{types.KindExploration, regexp.MustCompile(`(?i)\b(explor\w*|travel\w*|journey\w*|enter\w*|climb\w*|cross\w*|ventur\w*|wander\w*)\b`)},
		{types.KindCharacterDevelopment, regexp.MustCompile(`(?i)\b(chang\w*|grew|grow\w*|overcame|forgave|accept\w*|confess\w*|no longer)\b`)},
		{types.KindWorldState, regexp.MustCompile(`(?i)\b(kingdom|empire|war|plague|famine|storm|council|king|queen|city|village)\b`)},
	}

	emotionPatterns = map[string]*regexp.Regexp{
		types.EmotionJoy:     regexp.MustCompile(`(?i)\b(joy\w*|happ\w+|laugh\w*|delight\w*|celebrat\w*|cheer\w*)\b`),
		types.EmotionFear:    regexp.MustCompile(`(?i)\b(fear\w*|afraid|terrif\w*|scared|panic\w*|trembl\w*)\b`),
		types.EmotionGrief:   regexp.MustCompile(`(?i)\b(grie\w+|mourn\w*|funeral|died|dead|death|lost)\b`),
		types.EmotionAnger:   regexp.MustCompile(`(?i)\b(ang\w+|rage\w*|furious|fury|hate\w*|wrath)\b`),
		types.EmotionHope:    regexp.MustCompile(`(?i)\b(hope\w*|promis\w*|dawn|rescue\w*)\b`),
		types.EmotionWonder:  regexp.MustCompile(`(?i)\b(wonder\w*|marvel\w*|awe|glow\w*|ancient|magic\w*)\b`),
		types.EmotionDread:   regexp.MustCompile(`(?i)\b(dread\w*|omen\w*|ominous|shadow\w*|curse\w*)\b`),
		types.EmotionDespair: regexp.MustCompile(`(?i)\b(despair\w*|hopeless\w*|ruin\w*|doom\w*)\b`),
		types.EmotionGuilt:   regexp.MustCompile(`(?i)\b(guilt\w*|regret\w*|ashamed|sorry)\b`),
		types.EmotionLove:    regexp.MustCompile(`(?i)\b(love[sd]?|beloved|embrac\w*|kiss\w*)\b`),
		types.EmotionTrust:   regexp.MustCompile(`(?i)\b(trust\w*|loyal\w*|faithful)\b`),
		types.EmotionRelief:  regexp.MustCompile(`(?i)\b(relie\w+|safe|rest\w*|sigh\w*)\b`),
	}

	themePatterns = map[string]*regexp.Regexp{
		"betrayal":   regexp.MustCompile(`(?i)\b(betray\w*|traitor\w*|backstab\w*|double-cross\w*)\b`),
		"redemption": regexp.MustCompile(`(?i)\b(redeem\w*|redemption|atone\w*|forgiv\w*)\b`),
		"loyalty":    regexp.MustCompile(`(?i)\b(loyal\w*|oath\w*|sworn|vow\w*)\b`),
		"loss":       regexp.MustCompile(`(?i)\b(lost|loss|died|death|gone)\b`),
		"power":      regexp.MustCompile(`(?i)\b(throne|crown|power|rule\w*|council)\b`),
		"mystery":    regexp.MustCompile(`(?i)\b(myster\w*|secret\w*|riddle\w*|cipher|clue\w*)\b`),
		"combat":     regexp.MustCompile(`(?i)\b(battle\w*|fight\w*|fought|sword\w*|war)\b`),
		"family":     regexp.MustCompile(`(?i)\b(mother|father|sister|brother|daughter|son|family|kin)\b`),
		"sacrifice":  regexp.MustCompile(`(?i)\b(sacrific\w*|gave (?:up|everything))\b`),
	}

	intensifierRegex = regexp.MustCompile(`(?i)\b(suddenly|never|forever|screams?|blood|killed|dies|died|murder\w*)\b|!`)
	locationRegex    = regexp.MustCompile(`\b(?:in|at|inside|near|to|into|from|across) the ((?:[A-Z][\w'-]*\s?)+|[a-z][\w'-]+(?: [a-z][\w'-]+)?)`)
	properNameRegex  = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
)

// notNames are capitalized words that open sentences often enough to be
// mistaken for characters.
var notNames = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "Then": {}, "There": {}, "They": {}, "When": {}, "While": {},
	"After": {}, "Before": {}, "She": {}, "His": {}, "Her": {}, "You": {}, "Your": {}, "But": {},
	"And": {}, "With": {}, "Without": {}, "Suddenly": {}, "Finally": {}, "Meanwhile": {},
}

// HeuristicExtractor reads facts with keyword lexicons. It is deterministic
// and needs no network, which makes it the default and the test double.
type HeuristicExtractor struct{}

// Extract never fails. Text that matches no lexicon yields a low-weight event.
func (HeuristicExtractor) Extract(_ context.Context, text string) (Facts, error) {
	f := Facts{Kind: types.KindEvent}
	best := 0
	for _, kp := range kindPatterns {
		if n := len(kp.re.FindAllStringIndex(text, -1)); n > best {
			best, f.Kind = n, kp.kind
		}
	}

	for label, re := range emotionPatterns {
		if re.MatchString(text) {
			f.EmotionalTags = append(f.EmotionalTags, label)
		}
	}
	slices.Sort(f.EmotionalTags)
	for theme, re := range themePatterns {
		if re.MatchString(text) {
			f.ThematicTags = append(f.ThematicTags, theme)
		}
	}
	slices.Sort(f.ThematicTags)

	f.EmotionalWeight = heuristicWeight(f, len(intensifierRegex.FindAllStringIndex(text, -1)))
	f.Participants = participants(text)
	if m := locationRegex.FindStringSubmatch(text); m != nil {
		f.Location = strings.TrimSpace(m[1])
	}
	return f, nil
}

// heuristicWeight starts from a per-kind baseline and adds for each emotion
// and intensifier, capped at 1.
func heuristicWeight(f Facts, intensifiers int) float64 {
	base := 0.15
	switch f.Kind {
	case types.KindCombat, types.KindRelationship, types.KindCharacterDevelopment:
		base = 0.35
	case types.KindDecision, types.KindDiscovery:
		base = 0.25
	}
	w := base + 0.12*float64(len(f.EmotionalTags)) + 0.08*float64(intensifiers)
	for _, e := range f.EmotionalTags {
		if types.IsNegativeEmotion(e) {
			w += 0.05
		}
	}
	return math.Round(math.Min(w, 1)*100) / 100
}

// participants collects capitalized words that are not common sentence openers.
func participants(text string) []string {
	var out []string
	for _, w := range properNameRegex.FindAllString(text, -1) {
		if _, skip := notNames[w]; skip {
			continue
		}
		out = append(out, w)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LLMExtractor asks a TextGenerator for the facts and falls back to another
// extractor when the call fails or the reply cannot be used.
type LLMExtractor struct {
	gen      llm.TextGenerator
	fallback FactExtractor
}

// NewLLMExtractor returns an extractor backed by gen. A nil fallback means
// HeuristicExtractor.
func NewLLMExtractor(gen llm.TextGenerator, fallback FactExtractor) *LLMExtractor {
	if fallback == nil {
		fallback = HeuristicExtractor{}
	}
	return &LLMExtractor{gen: gen, fallback: fallback}
}

type jsonCompleter interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (Facts, error) {
	kinds := make([]string, len(types.ValidMemoryKinds))
	for i, k := range types.ValidMemoryKinds {
		kinds[i] = string(k)
	}
	prompt := llm.FactExtractionPrompt(text, kinds)

	var reply string
	var err error
	if jc, ok := e.gen.(jsonCompleter); ok {
		reply, err = jc.CompleteJSON(ctx, prompt)
	} else {
		reply, err = e.gen.Complete(ctx, prompt)
	}
	if err != nil {
		log.Warn("fact extraction via LLM failed, using fallback", "model", e.gen.GetModel(), "err", err)
		return e.fallback.Extract(ctx, text)
	}

	resp, err := llm.ParseFactsResponse(reply)
	if err != nil {
		log.Warn("unusable fact extraction reply, using fallback", "err", err)
		return e.fallback.Extract(ctx, text)
	}
	kind, err := types.ParseMemoryKind(resp.Kind)
	if err != nil {
		log.Debug("LLM proposed unknown memory kind", "kind", resp.Kind)
		kind = types.KindEvent
	}
	return Facts{
		Kind:            kind,
		EmotionalWeight: resp.EmotionalWeight,
		EmotionalTags:   types.NormalizeTags(resp.Emotions),
		ThematicTags:    types.NormalizeTags(resp.Themes),
		Participants:    resp.Participants,
		Location:        resp.Location,
	}, nil
}
