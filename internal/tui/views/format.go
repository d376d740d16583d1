package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

// Consecutive messages from the same sender within this window share one
// sender header.
const groupWindow = 5 * time.Minute

func formatClock(t time.Time) string {
	return t.Local().Format("15:04")
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// dateSeparator returns the separator label to render before msg, or ""
// when msg falls on the same local day as prev. A zero prev always yields
// a separator.
func dateSeparator(prev, cur time.Time) string {
	c := cur.Local()
	if !prev.IsZero() {
		p := prev.Local()
		if p.Year() == c.Year() && p.YearDay() == c.YearDay() {
			return ""
		}
	}
	now := time.Now()
	switch {
	case c.Year() == now.Year() && c.YearDay() == now.YearDay():
		return "Today"
	case c.Year() == now.AddDate(0, 0, -1).Year() && c.YearDay() == now.AddDate(0, 0, -1).YearDay():
		return "Yesterday"
	default:
		return c.Format("Monday, Jan 2")
	}
}

// sameGroup reports whether cur continues prev's sender group: same sender
// and close enough in time that the header is not repeated.
func sameGroup(prev, cur chat.Message) bool {
	if prev.SenderID != cur.SenderID {
		return false
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) < groupWindow
}

// senderLabel picks the display name for a message's header line.
func senderLabel(m chat.Message, selfID string) string {
	if m.SenderID == selfID {
		return "You"
	}
	if m.SenderName != "" {
		if m.SenderRole != "" {
			return fmt.Sprintf("%s (%s)", m.SenderName, m.SenderRole)
		}
		return m.SenderName
	}
	return m.SenderID
}

// reactionLine renders the message's reactions as "👍 2 · ❤️ 1", or "".
func reactionLine(m chat.Message) string {
	groups := chat.GroupReactions(m.Reactions)
	if len(groups) == 0 {
		return ""
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprintf("%s %d", g.Emoji, g.Count))
	}
	return strings.Join(parts, " · ")
}

// receiptMark returns the delivery indicator for the viewer's own
// messages: "✓✓" once the counterpart has read it, "✓" otherwise.
func receiptMark(m chat.Message, selfID string) string {
	if m.SenderID != selfID {
		return ""
	}
	if m.IsRead {
		return "✓✓"
	}
	return "✓"
}

// TypingLine renders the ephemeral typing indicator, or "".
func TypingLine(users []string, names map[string]string) string {
	if len(users) == 0 {
		return ""
	}
	labels := make([]string, 0, len(users))
	for _, u := range users {
		if n, ok := names[u]; ok && n != "" {
			labels = append(labels, n)
		} else {
			labels = append(labels, u)
		}
	}
	if len(labels) == 1 {
		return labels[0] + " is typing…"
	}
	return strings.Join(labels, ", ") + " are typing…"
}
