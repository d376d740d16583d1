package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/tui/ui"
)

// MessageThread displays one conversation's messages with a composer and a
// typing indicator footer.
type MessageThread struct {
	*tview.Flex
	theme        *ui.Theme
	messages     *tview.TextView
	typingFooter *tview.TextView
	composer     *tview.InputField
	title        string
	contentLines int
	onSend       func(text string)
	onType       func(isTyping bool)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typingFooter := tview.NewTextView().
		SetDynamicColors(true)
	typingFooter.SetBackgroundColor(theme.BgColor)
	typingFooter.SetTextColor(theme.TypingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typingFooter, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:         flex,
		theme:        theme,
		messages:     messages,
		typingFooter: typingFooter,
		composer:     composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})
	composer.SetChangedFunc(func(text string) {
		if mt.onType != nil {
			mt.onType(text != "")
		}
	})

	return mt
}

// SetTitle updates the thread title.
func (mt *MessageThread) SetThreadTitle(title string) {
	mt.title = title
	mt.messages.SetTitle(fmt.Sprintf(" %s ", title))
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnType sets the callback fired as the composer content changes.
func (mt *MessageThread) SetOnType(fn func(isTyping bool)) {
	mt.onType = fn
}

// Update re-renders the thread from the flattened message list (oldest
// first) and returns the new content height in lines.
func (mt *MessageThread) Update(msgs []chat.Message, selfID string) int {
	text, lines := renderThread(msgs, selfID)
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, text)
	mt.contentLines = lines
	return lines
}

// SetTypingText updates the typing indicator footer.
func (mt *MessageThread) SetTypingText(text string) {
	mt.typingFooter.Clear()
	if text != "" {
		_, _ = fmt.Fprint(mt.typingFooter, " "+tview.Escape(sanitizeForTerminal(text)))
	}
}

// ContentLines returns the line count of the last render.
func (mt *MessageThread) ContentLines() int {
	return mt.contentLines
}

// ScrollRow returns the current vertical scroll offset.
func (mt *MessageThread) ScrollRow() int {
	row, _ := mt.messages.GetScrollOffset()
	return row
}

// ScrollToRow scrolls the thread to the given row.
func (mt *MessageThread) ScrollToRow(row int) {
	mt.messages.ScrollTo(row, 0)
}

// ScrollToEnd jumps to the newest message.
func (mt *MessageThread) ScrollToEnd() {
	mt.messages.ScrollToEnd()
}

// ViewportHeight returns the inner height of the message area.
func (mt *MessageThread) ViewportHeight() int {
	_, _, _, h := mt.messages.GetInnerRect()
	return h
}

// AtTop reports whether the oldest loaded message is in view.
func (mt *MessageThread) AtTop() bool {
	return mt.ScrollRow() == 0
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// renderThread builds the thread text. Messages arrive oldest first; a date
// separator opens each new day and consecutive messages from one sender
// within a short window share a header. Returns the text and its height in
// lines.
func renderThread(msgs []chat.Message, selfID string) (string, int) {
	if len(msgs) == 0 {
		return "[gray]No messages yet. Say hello.[-]\n", 1
	}

	var b strings.Builder
	lines := 0

	var prev chat.Message
	for i, m := range msgs {
		if sep := dateSeparator(prev.CreatedAt, m.CreatedAt); sep != "" {
			fmt.Fprintf(&b, "[gray]── %s ──[-]\n", sep)
			lines++
		}

		grouped := i > 0 && dateSeparator(prev.CreatedAt, m.CreatedAt) == "" && sameGroup(prev, m)
		if !grouped {
			if i > 0 {
				b.WriteString("\n")
				lines++
			}
			sender := tview.Escape(sanitizeForTerminal(senderLabel(m, selfID)))
			fmt.Fprintf(&b, "[::b]%s[-:-:-] [::d]%s[-:-:-]\n", sender, formatClock(m.CreatedAt))
			lines++
		}

		body := m.Body
		if body == "" && m.ImageURL != "" {
			body = "[image] " + m.ImageURL
		}
		line := tview.Escape(sanitizeForTerminal(body))
		if mark := receiptMark(m, selfID); mark != "" {
			line += " [::d]" + mark + "[-:-:-]"
		}
		b.WriteString(line + "\n")
		lines++

		if rl := reactionLine(m); rl != "" {
			fmt.Fprintf(&b, "  [::d]%s[-:-:-]\n", tview.Escape(sanitizeForTerminal(rl)))
			lines++
		}

		prev = m
	}

	return b.String(), lines
}
