// Package wordfreq counts words repeated across translated titles.
package wordfreq

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultThreshold is the count a word must exceed to be reported.
const DefaultThreshold = 2

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Entry is one reported word.
type Entry struct {
	Word  string
	Count int
}

// Normalize lower-cases title, removes characters outside the word/space class
// and splits it on whitespace runs.
func Normalize(title string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(title), "")
	return strings.Fields(cleaned)
}

// Count tallies every normalized token across titles.
func Count(titles []string) map[string]int {
	counts := make(map[string]int)
	for _, title := range titles {
		for _, word := range Normalize(title) {
			counts[word]++
		}
	}
	return counts
}

// AnalyzeRepeatedWords returns the words that appear more than twice across
// titles. Nil or empty input yields an empty, non-nil map.
func AnalyzeRepeatedWords(titles []string) map[string]int {
	return Repeated(titles, DefaultThreshold)
}

// Repeated returns the words whose count is strictly greater than threshold.
func Repeated(titles []string, threshold int) map[string]int {
	out := make(map[string]int)
	for word, n := range Count(titles) {
		if n > threshold {
			out[word] = n
		}
	}
	return out
}

// Sorted orders a table by count descending, then alphabetically.
func Sorted(table map[string]int) []Entry {
	entries := make([]Entry, 0, len(table))
	for word, n := range table {
		entries = append(entries, Entry{Word: word, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Word < entries[j].Word
	})
	return entries
}
