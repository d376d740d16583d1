package views

import (
	"strings"
	"testing"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

func msgAt(id, sender string, at time.Time) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		SenderName:     strings.ToUpper(sender[:1]) + sender[1:],
		Body:           "body " + id,
		CreatedAt:      at,
	}
}

func TestDateSeparator(t *testing.T) {
	now := time.Now()
	yesterday := now.AddDate(0, 0, -1)
	lastWeek := now.AddDate(0, 0, -7)

	if got := dateSeparator(time.Time{}, now); got != "Today" {
		t.Errorf("first message today = %q, want Today", got)
	}
	if got := dateSeparator(time.Time{}, yesterday); got != "Yesterday" {
		t.Errorf("first message yesterday = %q, want Yesterday", got)
	}
	if got := dateSeparator(now.Add(-time.Hour), now); got != "" {
		t.Errorf("same day = %q, want empty", got)
	}
	if got := dateSeparator(yesterday, now); got != "Today" {
		t.Errorf("day boundary = %q, want Today", got)
	}
	if got := dateSeparator(time.Time{}, lastWeek); got != lastWeek.Format("Monday, Jan 2") {
		t.Errorf("old day = %q", got)
	}
}

func TestSameGroup(t *testing.T) {
	base := time.Now()
	a := msgAt("m1", "alice", base)
	b := msgAt("m2", "alice", base.Add(time.Minute))
	c := msgAt("m3", "bob", base.Add(2*time.Minute))
	d := msgAt("m4", "alice", base.Add(10*time.Minute))

	if !sameGroup(a, b) {
		t.Error("same sender within window should group")
	}
	if sameGroup(b, c) {
		t.Error("different sender must not group")
	}
	if sameGroup(a, d) {
		t.Error("same sender outside window must not group")
	}
}

func TestSenderLabel(t *testing.T) {
	m := msgAt("m1", "alice", time.Now())
	if got := senderLabel(m, "alice"); got != "You" {
		t.Errorf("own message label = %q, want You", got)
	}
	if got := senderLabel(m, "bob"); got != "Alice" {
		t.Errorf("label = %q, want Alice", got)
	}

	m.SenderRole = chat.RoleTeamMember
	if got := senderLabel(m, "bob"); got != "Alice (team_member)" {
		t.Errorf("label with role = %q", got)
	}

	m.SenderName = ""
	m.SenderRole = ""
	if got := senderLabel(m, "bob"); got != "alice" {
		t.Errorf("fallback label = %q, want sender id", got)
	}
}

func TestReceiptMark(t *testing.T) {
	m := msgAt("m1", "alice", time.Now())
	if got := receiptMark(m, "bob"); got != "" {
		t.Errorf("inbound message mark = %q, want empty", got)
	}
	if got := receiptMark(m, "alice"); got != "✓" {
		t.Errorf("unread outbound mark = %q, want single check", got)
	}
	m.IsRead = true
	if got := receiptMark(m, "alice"); got != "✓✓" {
		t.Errorf("read outbound mark = %q, want double check", got)
	}
}

func TestReactionLine(t *testing.T) {
	m := msgAt("m1", "alice", time.Now())
	if got := reactionLine(m); got != "" {
		t.Errorf("no reactions = %q, want empty", got)
	}

	m.Reactions = []chat.Reaction{
		{Emoji: "👍", UserID: "u1"},
		{Emoji: "👍", UserID: "u2"},
		{Emoji: "❤️", UserID: "u1"},
	}
	got := reactionLine(m)
	if !strings.Contains(got, "👍 2") || !strings.Contains(got, "❤️ 1") {
		t.Errorf("reaction line = %q", got)
	}
}

func TestTypingLine(t *testing.T) {
	if got := TypingLine(nil, nil); got != "" {
		t.Errorf("empty typing line = %q", got)
	}
	names := map[string]string{"u1": "Alice"}
	if got := TypingLine([]string{"u1"}, names); got != "Alice is typing…" {
		t.Errorf("single = %q", got)
	}
	if got := TypingLine([]string{"u1", "u2"}, names); got != "Alice, u2 are typing…" {
		t.Errorf("multi = %q", got)
	}
}

func TestRenderThreadGroupingAndSeparators(t *testing.T) {
	now := time.Now()
	base := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.Local)
	msgs := []chat.Message{
		msgAt("m1", "alice", base),
		msgAt("m2", "alice", base.Add(time.Minute)),
		msgAt("m3", "bob", base.Add(2*time.Minute)),
	}

	text, lines := renderThread(msgs, "bob")

	// One separator, two sender headers (alice grouped, bob separate), a
	// blank line before the second group, three bodies.
	if lines != 7 {
		t.Errorf("lines = %d, want 7\n%s", lines, text)
	}
	if strings.Count(text, "Alice") != 1 {
		t.Errorf("alice header should appear once:\n%s", text)
	}
	if !strings.Contains(text, "You") {
		t.Errorf("own messages labeled You:\n%s", text)
	}
	if got := strings.Count(text, "\n"); got != lines {
		t.Errorf("newline count %d != reported lines %d", got, lines)
	}
}

func TestRenderThreadEmpty(t *testing.T) {
	text, lines := renderThread(nil, "bob")
	if !strings.Contains(text, "No messages yet") || lines != 1 {
		t.Errorf("empty thread = (%q, %d), want explicit empty state", text, lines)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	in := "ok‍️\U0001F3FBdone"
	if got := sanitizeForTerminal(in); got != "okdone" {
		t.Errorf("sanitize = %q", got)
	}
}
