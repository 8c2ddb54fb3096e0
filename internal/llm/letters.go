package llm

import (
	"errors"
	"log"
	"strings"
	"unicode"
)

// ErrNoLetters means a classifier response held no usable decision letters.
var ErrNoLetters = errors.New("no decision letters in response")

var letterAliases = map[string]byte{
	"YES":     'Y',
	"NO":      'N',
	"CORE":    'C',
	"RELATED": 'R',
	"NONE":    'N',
}

// ParseLetters extracts one decision letter per item from a batch classifier
// response. Only tokens made entirely of allowed letters (or a known word such as
// YES/NO) count, so numbering, fences and chatter are ignored. The result is
// truncated or padded with pad to exactly n letters.
func ParseLetters(resp string, n int, allowed string, pad byte) (string, error) {
	allowed = strings.ToUpper(allowed)
	tokens := strings.FieldsFunc(strings.ToUpper(StripFences(resp)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	var b strings.Builder
	for _, tok := range tokens {
		if c, ok := letterAliases[tok]; ok && strings.IndexByte(allowed, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		if strings.Trim(tok, allowed) == "" {
			b.WriteString(tok)
		}
	}

	letters := b.String()
	if letters == "" {
		return "", ErrNoLetters
	}
	switch {
	case len(letters) > n:
		log.Printf("Classifier returned %d letters for %d items, truncating", len(letters), n)
		letters = letters[:n]
	case len(letters) < n:
		log.Printf("Classifier returned %d letters for %d items, padding with %c", len(letters), n, pad)
		letters += strings.Repeat(string(pad), n-len(letters))
	}
	return letters, nil
}
