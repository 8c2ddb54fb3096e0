package focus

import (
	"strings"
	"unicode"

	"github.com/TobiSchelling/painscout/internal/hypothesis"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "of": true,
	"to": true, "in": true, "on": true, "at": true, "by": true, "for": true, "with": true,
	"from": true, "about": true, "into": true, "who": true, "that": true, "which": true,
	"their": true, "they": true, "them": true, "is": true, "are": true, "be": true,
	"being": true, "get": true, "getting": true, "have": true, "has": true, "having": true,
	"want": true, "wanting": true, "people": true, "struggling": true, "struggle": true,
	"trouble": true, "difficulty": true, "hard": true, "when": true, "while": true, "can": true,
	"not": true, "do": true, "does": true, "how": true, "what": true, "too": true, "very": true,
	"many": true, "much": true, "some": true, "it": true, "its": true,
}

// Heuristic builds a focus without an LLM: content words and adjacent bigrams of
// the statement plus any problem language, with the audience (or first content
// word) as domain.
func Heuristic(h hypothesis.Hypothesis) Focus {
	statement := h.Statement()
	words := strings.FieldsFunc(strings.ToLower(statement), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	var keywords []string
	var prev string
	for _, w := range words {
		if stopwords[w] || len(w) < 3 {
			prev = ""
			continue
		}
		keywords = append(keywords, w)
		if prev != "" {
			keywords = append(keywords, prev+" "+w)
		}
		prev = w
	}

	domain := hypothesis.Normalize(h.Audience)
	if domain == "" {
		for _, w := range words {
			if !stopwords[w] && len(w) >= 3 {
				domain = w
				break
			}
		}
	}

	return merge(Focus{Keywords: keywords, ProblemText: statement, Domain: domain}, h)
}
