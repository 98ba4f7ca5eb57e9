package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/tianzhicdev/dogetionary-sub008/internal/models"
	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// VocabularyWord is one input entry: a word and the language it is learned in.
type VocabularyWord struct {
	Word     string `json:"word"`
	Language string `json:"language"`
}

// Key identifies the word in the checkpoint store.
func (v VocabularyWord) Key() string {
	return v.Language + ":" + v.Word
}

var languageCode = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})*$`)

// LoadVocabulary reads a word list from path. See ParseVocabulary.
func LoadVocabulary(path, defaultLanguage string) ([]VocabularyWord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.ConfigError("words", err.Error())
	}
	defer f.Close()
	return ParseVocabulary(f, defaultLanguage)
}

// ParseVocabulary reads CSV rows of word[,language]. An optional header row
// starting with "word" is skipped, as are blank lines and lines starting
// with '#'. Rows without a language use defaultLanguage. Repeated entries
// collapse to the first occurrence. A malformed row is a configuration error.
func ParseVocabulary(r io.Reader, defaultLanguage string) ([]VocabularyWord, error) {
	defaultLanguage = strings.ToLower(strings.TrimSpace(defaultLanguage))

	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var words []VocabularyWord
	seen := make(map[string]struct{})
	for first := true; ; first = false {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.ConfigError("words", fmt.Sprintf("malformed vocabulary file: %v", err))
		}
		line, _ := reader.FieldPos(0)

		if first && strings.EqualFold(strings.TrimSpace(record[0]), "word") {
			continue
		}
		if len(record) > 2 {
			return nil, apperrors.ConfigError("words", fmt.Sprintf("line %d: expected word[,language], got %d fields", line, len(record)))
		}

		word := models.NormalizeWord(record[0])
		if word == "" {
			if len(record) == 1 {
				continue
			}
			return nil, apperrors.ConfigError("words", fmt.Sprintf("line %d: word is empty", line))
		}
		lang := defaultLanguage
		if len(record) == 2 && strings.TrimSpace(record[1]) != "" {
			lang = strings.ToLower(strings.TrimSpace(record[1]))
		}
		if lang == "" {
			return nil, apperrors.ConfigError("words", fmt.Sprintf("line %d: no language for %q and no default set", line, word))
		}
		if !languageCode.MatchString(lang) {
			return nil, apperrors.ConfigError("words", fmt.Sprintf("line %d: invalid language code %q", line, lang))
		}

		entry := VocabularyWord{Word: word, Language: lang}
		if _, dup := seen[entry.Key()]; dup {
			continue
		}
		seen[entry.Key()] = struct{}{}
		words = append(words, entry)
	}

	if len(words) == 0 {
		return nil, apperrors.ConfigError("words", "vocabulary file contains no words")
	}
	return words, nil
}

// WordsIn returns the words of vocab learned in language, in input order.
func WordsIn(vocab []VocabularyWord, language string) []string {
	var out []string
	for _, v := range vocab {
		if v.Language == language {
			out = append(out, v.Word)
		}
	}
	return out
}
