package exec

import (
	"strings"
	"unicode"

	"renderwatch/internal/platform/engine"
)

// The mute heuristic scores every clickable-looking element by its text
// and clicks the best candidate only when the score clears the
// threshold. It never fails the job: no qualifying element is a no-op.
const muteScoreThreshold = 3

const muteClickable = `button, a, [role="button"], [onclick], input[type="button"], input[type="submit"]`

var muteHarvestJS = `() => {
	const out = [];
	const els = document.querySelectorAll('` + muteClickable + `');
	els.forEach((el, i) => {
		const t = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
		if (t && t.length <= 80) out.push({ i: i, text: t });
	});
	return out;
}`

var muteClickJS = `(i) => {
	const els = document.querySelectorAll('` + muteClickable + `');
	if (els[i]) els[i].click();
}`

// Term lists include common localized variants. Sound terms score +2,
// mute/negation terms +3, acceptance terms -1 (so "mute" buttons are not
// confused with consent banners that merely mention sound).
var (
	muteSoundTerms = wordSet(
		"sound", "audio", "music", "volume",
		"ton", "klang", "musik", "lautstärke",
		"son", "musique",
		"sonido", "música", "musica", "volumen",
		"som", "suono",
	)
	muteNegationTerms = wordSet(
		"mute", "muted", "unmute", "off", "no", "not", "silence", "silent",
		"stumm", "aus", "nein", "ohne", "lautlos",
		"sans", "non", "muet", "couper",
		"sin", "silencio", "silenciar", "desactivar",
		"sem", "desligar", "senza", "disattiva",
	)
	muteAcceptTerms = wordSet(
		"accept", "agree", "allow", "ok", "okay", "consent", "continue",
		"akzeptieren", "zustimmen", "einverstanden",
		"accepter", "autoriser",
		"aceptar", "acepto", "permitir",
		"aceitar", "accetta", "accetto", "consenti",
	)
)

type muteCandidate struct {
	index int
	text  string
}

// muteByHeuristic harvests clickable elements, scores them in order, and
// clicks the highest-scoring one when it qualifies.
func (e *Executor) muteByHeuristic(sf engine.Surface) {
	v, err := sf.Evaluate(muteHarvestJS)
	if err != nil {
		e.log.LogWarnf("mute heuristic: harvest failed: %v", err)
		return
	}

	best := muteCandidate{index: -1}
	bestScore := 0
	for _, c := range parseMuteCandidates(v) {
		if score := scoreMuteText(c.text); score > bestScore {
			best = c
			bestScore = score
		}
	}
	if best.index < 0 || bestScore < muteScoreThreshold {
		e.log.LogDebugf("mute heuristic: no qualifying element (best score %d)", bestScore)
		return
	}

	e.log.LogInfof("mute heuristic: clicking %q (score %d)", best.text, bestScore)
	if _, err := sf.Evaluate(muteClickJS, best.index); err != nil {
		e.log.LogWarnf("mute heuristic: click failed: %v", err)
	}
}

// scoreMuteText scores one element's text: +2 for a sound/audio/music
// term, +3 for a negation/mute/off term, -1 for an acceptance term; each
// category counts at most once.
func scoreMuteText(text string) int {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	score := 0
	if containsAny(tokens, muteSoundTerms) {
		score += 2
	}
	if containsAny(tokens, muteNegationTerms) {
		score += 3
	}
	if containsAny(tokens, muteAcceptTerms) {
		score--
	}
	return score
}

func parseMuteCandidates(v interface{}) []muteCandidate {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]muteCandidate, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		idx := -1
		switch n := m["i"].(type) {
		case float64:
			idx = int(n)
		case int:
			idx = n
		}
		if idx >= 0 && text != "" {
			out = append(out, muteCandidate{index: idx, text: text})
		}
	}
	return out
}

func containsAny(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func wordSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}
