package analyzer

import (
	"strings"
	"unicode"
)

// Sigil marks section references such as "§ 230". The reference is indexed
// both joined ("§230") and as the bare number ("230").
const Sigil = '§'

// Tokenizer splits text into lowercase lexical tokens for BM25 scoring.
type Tokenizer struct{}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

func (t *Tokenizer) Tokenize(text string) []string {
	return Tokenize(text)
}

// CountTokens returns an approximate token count for chunk sizing.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	// Rough estimate: average word is about 1.3 tokens
	return int(float64(len(words)) * 1.3)
}

// Tokenize lowercases text and returns its tokens in order of appearance.
// Multi-digit numbers additionally emit every non-zero digit on its own.
func Tokenize(text string) []string {
	runes := []rune(strings.ToLower(text))
	tokens := make([]string, 0, len(runes)/4)

	for i := 0; i < len(runes); {
		r := runes[i]

		if r == Sigil {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start := j
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			if j > start {
				number := string(runes[start:j])
				tokens = append(tokens, string(Sigil)+number, number)
				i = j
				continue
			}
			i++
			continue
		}

		if !isWordRune(r) {
			i++
			continue
		}

		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		tokens = append(tokens, word)
		if j-i > 1 && isNumber(runes[i:j]) {
			for _, d := range runes[i:j] {
				if d != '0' {
					tokens = append(tokens, string(d))
				}
			}
		}
		i = j
	}

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isNumber(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if isWordRune(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
