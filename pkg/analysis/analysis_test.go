package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeShortTranscript(t *testing.T) {
	result := Analyze("Hello world. This is a test.")

	assert.Equal(t, 6, result.Metrics.WordCount)
	assert.Equal(t, 2, result.Metrics.SentenceCount)
	assert.Equal(t, 3.0, result.Metrics.AvgWordsPerSentence)
	// Deductions are independent and all apply: base 7, minus 1 for an
	// average under 5 words per sentence, minus 1 for fewer than 30 words.
	assert.Equal(t, 5.0, result.Score)
	assert.Equal(t, "5.0", result.ScoreText())
	assert.True(t, strings.HasPrefix(result.Feedback, "Your response was quite brief"))
	assert.True(t, strings.HasSuffix(result.Feedback, "Overall, your response had 6 words across approximately 2 sentences."))
}

func TestMeasure(t *testing.T) {
	testCases := []struct {
		name      string
		text      string
		words     int
		sentences int
		avg       float64
	}{
		{"Empty", "", 0, 0, 0},
		{"Whitespace", "   \n\t ", 0, 0, 0},
		{"NoTerminator", "just talking without stopping", 4, 1, 4},
		{"RepeatedTerminators", "Really?! Yes... absolutely!!!", 3, 3, 1},
		{"OnlyPunctuation", "...!?", 1, 0, 0},
		{"MixedWhitespace", "one\ttwo\nthree  four.", 4, 1, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := Measure(tc.text)
			assert.Equal(t, tc.words, m.WordCount)
			assert.Equal(t, tc.sentences, m.SentenceCount)
			assert.InDelta(t, tc.avg, m.AvgWordsPerSentence, 1e-9)
		})
	}
}

func TestScoreDeductions(t *testing.T) {
	testCases := []struct {
		name    string
		metrics Metrics
		score   float64
	}{
		{"NoDeductions", Metrics{WordCount: 60, SentenceCount: 6, AvgWordsPerSentence: 10}, 7},
		{"BriefOnly", Metrics{WordCount: 20, SentenceCount: 2, AvgWordsPerSentence: 10}, 6},
		{"ShortSentences", Metrics{WordCount: 40, SentenceCount: 10, AvgWordsPerSentence: 4}, 6},
		{"LongSentences", Metrics{WordCount: 40, SentenceCount: 2, AvgWordsPerSentence: 20}, 6},
		{"BriefAndLong", Metrics{WordCount: 20, SentenceCount: 1, AvgWordsPerSentence: 20}, 5},
		{"Empty", Metrics{}, 5},
		{"BoundaryFive", Metrics{WordCount: 30, SentenceCount: 6, AvgWordsPerSentence: 5}, 7},
		{"BoundaryFifteen", Metrics{WordCount: 30, SentenceCount: 2, AvgWordsPerSentence: 15}, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.score, Score(tc.metrics))
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 4.0, clampScore(baseScore-3))
	assert.Equal(t, 0.0, clampScore(-2))
	assert.Equal(t, 10.0, clampScore(12.5))
	assert.Equal(t, 6.3, clampScore(6.25))
}

func TestScoreStaysInRange(t *testing.T) {
	inputs := []string{
		"",
		"Hi.",
		strings.Repeat("word ", 200),
		strings.Repeat("A short one. ", 40),
		strings.Repeat("This sentence has exactly eight words in it. ", 20),
	}
	for _, in := range inputs {
		r := Analyze(in)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 7.0)
	}
}

func TestFeedbackBrackets(t *testing.T) {
	detailed := Analyze(strings.Repeat("This sentence has exactly eight words in it. ", 15))
	assert.Equal(t, 120, detailed.Metrics.WordCount)
	assert.Equal(t, 7.0, detailed.Score)
	assert.Equal(t,
		feedbackDetailed+" "+feedbackBalanced+" Overall, your response had 120 words across approximately 15 sentences.",
		detailed.Feedback)

	middle := Analyze(strings.Repeat("This sentence has exactly eight words in it. ", 5))
	assert.Equal(t,
		feedbackBalanced+" Overall, your response had 40 words across approximately 5 sentences.",
		middle.Feedback)

	long := Analyze(strings.Repeat("word ", 40) + ".")
	assert.Contains(t, long.Feedback, feedbackLong)
	assert.NotContains(t, long.Feedback, feedbackBrief)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	text := "Practice makes perfect. Keep going!"
	assert.Equal(t, Analyze(text), Analyze(text))
}
