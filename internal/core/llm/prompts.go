package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	defaultTopic = "UK defence procurement"

	summaryPromptTemplate = "Summarise in 5-7 bullets focusing on %s problems and proposed solutions. Be specific.\n\n"

	// maxInputChars bounds the article text sent to the model.
	maxInputChars = 12000
)

func buildSummaryPrompt(topic, text string) string {
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}

	return fmt.Sprintf(summaryPromptTemplate, topic) + truncateRunes(text, maxInputChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)

	return string(runes[:n])
}
