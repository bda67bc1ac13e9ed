// Package cover builds the set of search tokens used to enumerate a registry
// that only supports substring search with a capped result count.
//
// The cover assumes the remote search matches on substring containment and
// that every record's searchable text contains at least one pair of
// alphabet letters, either adjacent or joined by a separator. This has not
// been verified against the real registry; tokens reported as too broad are
// the places where the assumption may leak records.
package cover

import (
	"errors"
	"fmt"
)

// Alphabets used by the default cover
const (
	CyrillicLetters = "АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ"
	LatinLetters    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits          = "0123456789"
	Separators      = "-"
)

var (
	ErrDuplicateRune     = errors.New("alphabet contains a duplicate character")
	ErrSeparatorIsLetter = errors.New("separator is also a letter")
)

// Alphabet is the character set a cover is generated from.
type Alphabet struct {
	Letters    string `yaml:"letters"`
	Separators string `yaml:"separators"`
}

// DefaultAlphabet returns the alphabet used for the rs-class.org register:
// Cyrillic and Latin capitals, digits and a dash separator.
func DefaultAlphabet() Alphabet {
	return Alphabet{
		Letters:    CyrillicLetters + LatinLetters + Digits,
		Separators: Separators,
	}
}

// Validate checks that the generated tokens will be unique.
func (a Alphabet) Validate() error {
	letters := map[rune]bool{}
	for _, r := range a.Letters {
		if letters[r] {
			return fmt.Errorf("%w: %q", ErrDuplicateRune, r)
		}
		letters[r] = true
	}

	separators := map[rune]bool{}
	for _, r := range a.Separators {
		if letters[r] {
			return fmt.Errorf("%w: %q", ErrSeparatorIsLetter, r)
		}
		if separators[r] {
			return fmt.Errorf("%w: %q", ErrDuplicateRune, r)
		}
		separators[r] = true
	}

	return nil
}

// Size returns the number of tokens Generate will produce: n² × (1+s).
func (a Alphabet) Size() int {
	n := len([]rune(a.Letters))
	s := len([]rune(a.Separators))
	return n * n * (1 + s)
}

// Generate returns every letter pair "ab" followed by its separated forms
// "a-b", for all ordered pairs of letters. The result is deterministic. An
// alphabet without letters yields an empty slice.
func (a Alphabet) Generate() []string {
	letters := []rune(a.Letters)
	separators := []rune(a.Separators)

	tokens := make([]string, 0, a.Size())
	for _, first := range letters {
		for _, second := range letters {
			tokens = append(tokens, string([]rune{first, second}))

			for _, sep := range separators {
				tokens = append(tokens, string([]rune{first, sep, second}))
			}
		}
	}

	return tokens
}
