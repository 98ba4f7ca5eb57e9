package scoring

import (
	"fmt"
	"strings"
)

const systemPrompt = `You rate short video clips as teaching material for language learners.
Given a clip transcript, its title, its duration and a vocabulary list, decide which
vocabulary words the clip teaches. A word is taught when it is spoken clearly in the
transcript and its meaning can be inferred from the scene.
Only use words from the vocabulary list. Only use words that literally appear in the transcript.
Respond with JSON only, in the form:
{"words":[{"word":"<vocabulary word>","score":<0..1>,"reason":"<one short sentence>"}]}
Return {"words":[]} when nothing is taught.`

func buildUserPrompt(req Request) string {
	var b strings.Builder
	if req.Language != "" {
		fmt.Fprintf(&b, "Learning language: %s\n", req.Language)
	}
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}
	if req.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %.1f seconds\n", req.Duration)
	}
	fmt.Fprintf(&b, "Vocabulary: %s\n", strings.Join(req.Vocabulary, ", "))
	fmt.Fprintf(&b, "Transcript:\n%s\n", strings.TrimSpace(req.Transcript))
	return b.String()
}
