// Package analysis scores a speech transcript on simple lexical metrics.
//
// Analyze is a pure function: the same text always yields the same Result.
package analysis

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	baseScore = 7.0
	minScore  = 0.0
	maxScore  = 10.0

	// BriefWordCount is the word count below which a response is considered brief.
	BriefWordCount = 30
	// DetailedWordCount is the word count above which a response is considered detailed.
	DetailedWordCount = 100
	// ShortSentenceWords is the average sentence length below which sentences are short.
	ShortSentenceWords = 5.0
	// LongSentenceWords is the average sentence length above which sentences are long.
	LongSentenceWords = 15.0
)

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

const (
	feedbackBrief    = "Your response was quite brief. Try to elaborate more on your ideas with examples and details."
	feedbackDetailed = "Great job providing a detailed response with plenty of content."
	feedbackShort    = "Your sentences are rather short. Try combining related ideas into longer, more complex sentences."
	feedbackLong     = "Some of your sentences are quite long. Consider breaking them up to make your points clearer."
	feedbackBalanced = "Your sentence length is well balanced, which makes your speech easy to follow."
)

// Metrics are the raw counts derived from a transcript.
type Metrics struct {
	WordCount           int     `json:"wordCount" yaml:"wordCount"`
	SentenceCount       int     `json:"sentenceCount" yaml:"sentenceCount"`
	AvgWordsPerSentence float64 `json:"avgWordsPerSentence" yaml:"avgWordsPerSentence"`
}

// Result is the outcome of analyzing one transcript.
type Result struct {
	Score    float64 `json:"score" yaml:"score"`
	Feedback string  `json:"feedback" yaml:"feedback"`
	Metrics  Metrics `json:"metrics" yaml:"metrics"`
}

// ScoreText renders the score with exactly one decimal digit.
func (r Result) ScoreText() string {
	return fmt.Sprintf("%.1f", r.Score)
}

// Analyze computes metrics, score and feedback for text.
func Analyze(text string) Result {
	m := Measure(text)
	return Result{
		Score:    Score(m),
		Feedback: Feedback(m),
		Metrics:  m,
	}
}

// Measure counts words and sentences in text.
func Measure(text string) Metrics {
	m := Metrics{
		WordCount:     len(strings.Fields(text)),
		SentenceCount: countSentences(text),
	}
	if m.SentenceCount > 0 {
		m.AvgWordsPerSentence = float64(m.WordCount) / float64(m.SentenceCount)
	}
	return m
}

func countSentences(text string) int {
	n := 0
	for _, segment := range sentenceTerminators.Split(text, -1) {
		if strings.TrimSpace(segment) != "" {
			n++
		}
	}
	return n
}

// Score applies the deductions to the base score.
func Score(m Metrics) float64 {
	deductions := 0
	if m.AvgWordsPerSentence < ShortSentenceWords {
		deductions++
	}
	if m.AvgWordsPerSentence > LongSentenceWords {
		deductions++
	}
	if m.WordCount < BriefWordCount {
		deductions++
	}
	return clampScore(baseScore - float64(deductions))
}

// clampScore bounds s to [0, 10] and rounds it to one decimal place.
func clampScore(s float64) float64 {
	s = math.Max(minScore, math.Min(maxScore, s))
	return math.Round(s*10) / 10
}

// Feedback assembles the word-count bracket, the sentence-length bracket and the summary.
func Feedback(m Metrics) string {
	parts := make([]string, 0, 3)

	switch {
	case m.WordCount < BriefWordCount:
		parts = append(parts, feedbackBrief)
	case m.WordCount > DetailedWordCount:
		parts = append(parts, feedbackDetailed)
	}

	switch {
	case m.AvgWordsPerSentence < ShortSentenceWords:
		parts = append(parts, feedbackShort)
	case m.AvgWordsPerSentence > LongSentenceWords:
		parts = append(parts, feedbackLong)
	default:
		parts = append(parts, feedbackBalanced)
	}

	parts = append(parts, fmt.Sprintf("Overall, your response had %d words across approximately %d sentences.", m.WordCount, m.SentenceCount))
	return strings.Join(parts, " ")
}
