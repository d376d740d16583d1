package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/tui/ui"
)

// ConversationList is the main conversation list view.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	convs  []chat.Conversation
	unread func(conversationID string) int
	filter string
}

// NewConversationList creates a new conversation list table. unread
// supplies the live counter per conversation.
func NewConversationList(theme *ui.Theme, unread func(conversationID string) int) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table:  table,
		theme:  theme,
		unread: unread,
	}
}

// Update refreshes the conversation list with new data.
func (cl *ConversationList) Update(convs []chat.Conversation) {
	cl.convs = convs
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" TYPE", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	row := 1
	for _, conv := range cl.visible() {
		name := conv.Title
		if name == "" {
			name = conv.CounterpartName
		}

		nameColor := cl.theme.FgColor
		if n := cl.unread(conv.ID); n > 0 {
			name = fmt.Sprintf("(%d) %s", n, name)
			nameColor = cl.theme.UnreadColor
		}

		kind := "VISIT"
		if conv.Kind == chat.KindSupport {
			kind = "SUPPORT"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(nameColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(conv.LastMessagePreview))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(conv.LastMessageAt)).SetExpansion(0).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(kind).SetExpansion(0).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		row++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", row-1, len(cl.convs), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the currently selected conversation, or nil.
func (cl *ConversationList) Selected() *chat.Conversation {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx < 0 {
		return nil
	}
	visible := cl.visible()
	if idx >= len(visible) {
		return nil
	}
	return &visible[idx]
}

func (cl *ConversationList) visible() []chat.Conversation {
	if cl.filter == "" {
		return cl.convs
	}
	var out []chat.Conversation
	for _, conv := range cl.convs {
		name := conv.Title
		if name == "" {
			name = conv.CounterpartName
		}
		if containsFold(name, cl.filter) || containsFold(conv.LastMessagePreview, cl.filter) {
			out = append(out, conv)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
