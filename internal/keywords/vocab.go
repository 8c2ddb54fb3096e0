package keywords

// indicators are single words that signal frustration, delay or failure.
var indicators = wordSet(
	"frustrated", "frustrating", "frustration", "annoyed", "annoying", "struggle", "struggling",
	"struggled", "hate", "hated", "sucks", "problem", "problems", "issue", "issues", "late",
	"delay", "delayed", "delays", "overdue", "unpaid", "ghosted", "ghosting", "stuck", "broken",
	"fail", "failed", "failing", "failure", "impossible", "nightmare", "waste", "wasted",
	"wasting", "stress", "stressed", "stressful", "painful", "exhausted", "exhausting", "losing",
	"lost", "scam", "scammed", "refuse", "refused", "refuses", "ignored", "ignoring", "chasing",
	"chase", "can't", "cannot", "won't", "never", "worst", "terrible", "awful", "ridiculous",
	"desperate", "overwhelmed", "burnout", "burned", "burnt", "quit", "giving", "difficult",
	"hard", "hassle", "headache", "complain", "complaining", "disappointed", "unreliable",
	"expensive", "costly", "confusing", "confused", "help", "advice",
)

// idioms are multi-word or symbolic phrases that signal a problem on their own.
var idioms = []string{
	"$0", "not paid", "never paid", "no payment", "still waiting", "still haven't",
	"at my wits end", "at my wit's end", "fed up", "sick of", "tired of", "pulling my hair out",
	"what am i doing wrong", "how do i deal", "how do you deal", "drives me crazy",
	"driving me crazy", "going crazy", "can't figure out", "gave up", "nothing works",
	"doesn't work", "does not work", "red flags", "any advice", "need advice", "is it normal",
	"am i the only one", "don't know what to do", "last straw", "out of pocket",
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// IsIndicator reports whether word is in the problem-indicator vocabulary.
func IsIndicator(word string) bool {
	return indicators[word]
}
