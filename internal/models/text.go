package models

import (
	"strings"
	"unicode"
)

// hebrewPrefixes are the one-letter prepositions and conjunctions that attach
// to the front of a Hebrew word (ב, ו, ה, ל, מ, ש, כ).
const hebrewPrefixes = "בוהלמשכ"

func IsHebrewRune(r rune) bool {
	return r >= 0x0590 && r <= 0x05FF
}

func isHebrewWord(s string) bool {
	for _, r := range s {
		if IsHebrewRune(r) {
			return true
		}
	}
	return false
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchWord compares a text token with a wanted word. Hebrew words also match
// with up to three attached prefix letters, so "במכבי" matches "מכבי".
func MatchWord(token, want string) bool {
	if token == want {
		return true
	}
	if !isHebrewWord(want) || !strings.HasSuffix(token, want) {
		return false
	}
	prefix := []rune(strings.TrimSuffix(token, want))
	if len(prefix) == 0 || len(prefix) > 3 {
		return false
	}
	for _, r := range prefix {
		if !strings.ContainsRune(hebrewPrefixes, r) {
			return false
		}
	}
	return true
}

// ContainsPhrase reports whether the phrase occurs as consecutive tokens.
func ContainsPhrase(tokens []string, phrase string) bool {
	return len(PhraseIndexes(tokens, phrase)) > 0
}

// PhraseIndexes returns the token positions where the phrase starts.
func PhraseIndexes(tokens []string, phrase string) []int {
	want := Tokenize(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return nil
	}
	var out []int
	for i := 0; i+len(want) <= len(tokens); i++ {
		ok := true
		for j, w := range want {
			// only the first word of a phrase may carry a prefix
			if j == 0 {
				ok = MatchWord(tokens[i], w)
			} else {
				ok = tokens[i+j] == w
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func ContainsAnyPhrase(tokens []string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if ContainsPhrase(tokens, p) {
			return p, true
		}
	}
	return "", false
}
