package wordfreq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeRepeatedWordsEmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range [][]string{nil, {}} {
		got := AnalyzeRepeatedWords(in)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestAnalyzeRepeatedWordsThreshold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]int{"cat": 2, "dog": 3, "bird": 1}, Count([]string{"Cat dog cat", "Dog bird dog"}))
	assert.Equal(t, map[string]int{"dog": 3}, AnalyzeRepeatedWords([]string{"Cat dog cat", "Dog bird dog"}))
}

func TestNormalizeStripsPunctuation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"the", "war", "its", "cost"}, Normalize("  The war: it's COST!  "))
	assert.Empty(t, Normalize("¿?¡! --"))
}

func TestAnalyzeRepeatedWordsAcrossTitles(t *testing.T) {
	t.Parallel()

	titles := []string{
		"The future of the left",
		"The price of housing",
		"Why the euro matters",
		"",
	}
	assert.Equal(t, map[string]int{"the": 4}, AnalyzeRepeatedWords(titles))
}

func TestSorted(t *testing.T) {
	t.Parallel()

	got := Sorted(map[string]int{"of": 3, "the": 5, "and": 3})
	assert.Equal(t, []Entry{{"the", 5}, {"and", 3}, {"of", 3}}, got)
	assert.Empty(t, Sorted(nil))
}
