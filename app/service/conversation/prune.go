package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pawdesk/app/client/llm"

	"github.com/elliotchance/pie/v2"
)

const (
	summaryTopics   = 3
	summaryTopicLen = 60
)

// pruneMessages trims history down to maxTurns turns, where one turn starts
// at a user message and runs until the next one. Cutting at turn boundaries
// keeps every tool-call request together with its results: a result can only
// follow its request within the same turn. The elided prefix is replaced by
// a short summary message.
func pruneMessages(messages []llm.Message, maxTurns int) []llm.Message {
	if maxTurns <= 0 {
		return messages
	}

	turnStarts := userIndexes(messages)
	if len(turnStarts) <= maxTurns {
		return messages
	}

	cut := turnStarts[len(turnStarts)-maxTurns]
	elided := messages[:cut]
	kept := messages[cut:]

	// A summary left by an earlier prune counts toward the total.
	turns := len(turnStarts) - maxTurns + priorElidedTurns(elided)

	summary := llm.Message{
		Role:    llm.RoleSystem,
		Content: summarize(elided, turns),
	}

	result := make([]llm.Message, 0, len(kept)+1)
	result = append(result, summary)
	result = append(result, kept...)

	return result
}

var summaryPattern = regexp.MustCompile(`^\[(\d+) earlier turns elided`)

func priorElidedTurns(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		if m.Role != llm.RoleSystem {
			continue
		}
		if match := summaryPattern.FindStringSubmatch(m.Content); match != nil {
			n, _ := strconv.Atoi(match[1])
			total += n
		}
	}
	return total
}

func userIndexes(messages []llm.Message) []int {
	var indexes []int
	for i, m := range messages {
		if m.Role == llm.RoleUser {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func summarize(elided []llm.Message, turns int) string {
	topics := pie.Map(
		lastUserMessages(elided, summaryTopics),
		func(m llm.Message) string { return truncate(m.Content, summaryTopicLen) },
	)

	if len(topics) == 0 {
		return fmt.Sprintf("[%d earlier turns elided]", turns)
	}

	return fmt.Sprintf("[%d earlier turns elided; recent topics: %s]",
		turns, strings.Join(topics, "; "))
}

func lastUserMessages(messages []llm.Message, n int) []llm.Message {
	users := pie.Filter(messages, func(m llm.Message) bool {
		return m.Role == llm.RoleUser
	})
	if len(users) > n {
		users = users[len(users)-n:]
	}
	return users
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
