package words

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultMinZipf is the commonness threshold used when none is configured.
const DefaultMinZipf = 3.5

// topZipf approximates the Zipf value of the most frequent English word. Zipf
// values of ranked lists are estimated as topZipf - log10(rank).
const topZipf = 7.78

//go:embed common_words.txt
var commonWords string

// Predicate decides whether a sanitized candidate is acceptable as a secret word.
type Predicate func(word string) bool

// AcceptAll accepts every word.
func AcceptAll(string) bool { return true }

// MinZipf accepts words whose Zipf frequency in table is at least min.
func MinZipf(table FrequencyTable, min float64) Predicate {
	return func(word string) bool {
		return table.Zipf(word) >= min
	}
}

// All accepts a word only if every predicate does.
func All(preds ...Predicate) Predicate {
	return func(word string) bool {
		for _, p := range preds {
			if !p(word) {
				return false
			}
		}
		return true
	}
}

// FrequencyTable maps words to Zipf frequency (log10 occurrences per billion words).
type FrequencyTable map[string]float64

// Zipf returns the frequency of word, or 0 if unknown.
func (t FrequencyTable) Zipf(word string) float64 {
	return t[word]
}

// Words returns the table's words of the given length.
func (t FrequencyTable) Words(length int) []string {
	var out []string
	for w := range t {
		if len(w) == length {
			out = append(out, w)
		}
	}
	return out
}

// LoadFrequencyTable reads one word per line. A line may carry an explicit
// Zipf value after whitespace ("apple 4.2"); otherwise the value is estimated
// from the line's rank. Blank lines and lines starting with '#' are skipped.
func LoadFrequencyTable(r io.Reader) (FrequencyTable, error) {
	table := make(FrequencyTable)
	scanner := bufio.NewScanner(r)
	rank := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		word := Sanitize(fields[0])
		if word == "" {
			continue
		}
		rank++

		zipf := topZipf - math.Log10(float64(rank))
		if len(fields) > 1 {
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse zipf %q: %w", lineNo, fields[1], err)
			}
			zipf = v
		}
		if _, seen := table[word]; !seen {
			table[word] = zipf
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frequency table: %w", err)
	}
	return table, nil
}

var defaultTable = sync.OnceValue(func() FrequencyTable {
	table, err := LoadFrequencyTable(strings.NewReader(commonWords))
	if err != nil {
		panic("words: embedded frequency table: " + err.Error())
	}
	return table
})

// DefaultFrequencyTable returns the table built from the embedded common-word list.
func DefaultFrequencyTable() FrequencyTable {
	return defaultTable()
}
