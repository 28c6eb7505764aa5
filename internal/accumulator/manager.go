package accumulator

import "fmt"

// Manager is the thin business-logic layer over Accumulator: feedback
// strings, status, show, and clear, as described in SPEC_FULL.md §4.6.
type Manager struct {
	acc             *Accumulator
	feedbackEnabled bool
}

// NewManager returns a Manager wrapping acc.
func NewManager(acc *Accumulator, feedbackEnabled bool) *Manager {
	return &Manager{acc: acc, feedbackEnabled: feedbackEnabled}
}

// ProcessNonCommand adds text to chatID's accumulator and, if feedback is
// enabled and the message was actually stored, returns a feedback sentence
// naming the new count.
func (m *Manager) ProcessNonCommand(chatID int64, text string) (string, bool) {
	added := m.acc.Add(chatID, text)
	if !m.feedbackEnabled || !added {
		return "", false
	}

	count := m.acc.Count(chatID)
	if count == 1 {
		return "📝 Message stored. You now have 1 message ready for your next command.", true
	}

	return fmt.Sprintf("📝 Message stored. You now have %d messages ready for your next command.", count), true
}

// DrainForCommand consumes and clears the accumulated parameters for
// chatID. This is the only site that drains accumulator state for plugin
// dispatch, and it emits no feedback (SPEC_FULL.md §9 open question).
func (m *Manager) DrainForCommand(chatID int64) []string {
	return m.acc.Drain(chatID)
}

// Status returns a human-readable summary of chatID's accumulator.
func (m *Manager) Status(chatID int64) string {
	count := m.acc.Count(chatID)

	switch count {
	case 0:
		return "📭 No messages accumulated. Send some messages and then use a command!"
	case 1:
		return "📝 You have 1 message accumulated and ready for your next command."
	default:
		return fmt.Sprintf("📝 You have %d messages accumulated and ready for your next command.", count)
	}
}

// Show lists chatID's accumulated messages, each truncated to 100 runes for
// display.
func (m *Manager) Show(chatID int64) string {
	messages := m.acc.Get(chatID)
	if len(messages) == 0 {
		return "📭 No messages accumulated."
	}

	lines := make([]string, 0, len(messages)+1)
	lines = append(lines, fmt.Sprintf("📝 Your accumulated messages (%d total):", len(messages)))

	for i, message := range messages {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, previewRunes(message, 100)))
	}

	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}

	return out
}

// Clear empties chatID's accumulator and returns a confirmation message.
func (m *Manager) Clear(chatID int64) string {
	count := m.acc.Count(chatID)
	if count == 0 {
		return "📭 No messages to clear - your accumulator is already empty."
	}

	m.acc.Clear(chatID)

	if count == 1 {
		return "🗑️ Cleared 1 accumulated message."
	}

	return fmt.Sprintf("🗑️ Cleared %d accumulated messages.", count)
}

// GlobalStatus summarizes accumulator state across all chats.
func (m *Manager) GlobalStatus() string {
	totalChats := m.acc.TotalChats()
	if totalChats == 0 {
		return "📊 Global Status: No active chat accumulators."
	}

	totalMessages := 0
	for _, id := range m.acc.AllChatIDs() {
		totalMessages += m.acc.Count(id)
	}

	return fmt.Sprintf("📊 Global Status: %d active chat(s) with %d total accumulated message(s).", totalChats, totalMessages)
}

func previewRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}

	return string(r[:limit]) + "..."
}
