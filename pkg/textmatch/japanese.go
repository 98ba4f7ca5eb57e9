package textmatch

import (
	"strings"
	"sync"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// japanese loads the IPA dictionary on first use.
var japanese = sync.OnceValues(func() (*tokenizer.Tokenizer, error) {
	return tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
})

// spaceless reports whether s is written in a script that does not separate
// words with spaces.
func spaceless(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

func morphemes(t *tokenizer.Tokenizer, text string) []string {
	var out []string
	for _, tok := range t.Tokenize(text) {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		surface := strings.TrimSpace(tok.Surface)
		if surface == "" {
			continue
		}
		out = append(out, Fold(surface))
	}
	return out
}

// containsMorphemes matches word against transcript one morpheme at a time,
// on surface forms only: "学校" is found in "学校に行った" but "校" is not,
// and neither is the dictionary form "行く".
func containsMorphemes(transcript, word string) (bool, error) {
	t, err := japanese()
	if err != nil {
		return false, err
	}
	needle := morphemes(t, word)
	if len(needle) == 0 {
		return false, nil
	}
	haystack := morphemes(t, transcript)

	for i := 0; i+len(needle) <= len(haystack); i++ {
		matched := true
		for j, m := range needle {
			if haystack[i+j] != m {
				matched = false
				break
			}
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
