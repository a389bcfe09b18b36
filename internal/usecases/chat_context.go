package usecases

import "reqforge/internal/infrastructure"

// SelectMessagesForContext picks the suffix of the conversation that fits
// within maxChars of content, preserving order. If the single most recent
// message alone exceeds the budget, it is included truncated to its last
// maxChars characters so the newest content survives. Pure and
// deterministic.
func SelectMessagesForContext(messages []infrastructure.ChatMessage, maxChars int) []infrastructure.ChatMessage {
	if maxChars <= 0 {
		return []infrastructure.ChatMessage{}
	}

	selected := []infrastructure.ChatMessage{}
	used := 0

	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		size := len(message.Content)
		if size > maxChars {
			if len(selected) == 0 {
				truncated := message
				truncated.Content = message.Content[size-maxChars:]
				selected = append([]infrastructure.ChatMessage{truncated}, selected...)
			}
			break
		}

		if used+size > maxChars {
			break
		}

		selected = append([]infrastructure.ChatMessage{message}, selected...)
		used += size
	}

	return selected
}
