package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

func msg(id string, ts int64) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       "other",
		Body:           "body-" + id,
		CreatedAt:      time.UnixMilli(ts),
	}
}

func page(num, totalPages int, msgs ...chat.Message) chat.Page {
	return chat.Page{
		Data: msgs,
		Pagination: chat.Pagination{
			Page: num, Limit: len(msgs), Total: 0, TotalPages: totalPages,
		},
	}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func wantOrder(t *testing.T, got []chat.Message, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages %v, want %d %v", len(got), ids(got), len(want), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

// Two newest-first pages flatten to the oldest-first chronological sequence.
func TestFlattenTwoPages(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 2, msg("m5", 5000), msg("m4", 4000), msg("m3", 3000)))
	c.AddOlderPage(page(2, 2, msg("m2", 2000), msg("m1", 1000)))

	wantOrder(t, c.Flatten(), "m1", "m2", "m3", "m4", "m5")
}

func TestFlattenSortedByTimestamp(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 3, msg("m9", 9000), msg("m8", 8000)))
	c.AddOlderPage(page(2, 3, msg("m7", 7000), msg("m6", 6000)))
	c.AddOlderPage(page(3, 3, msg("m5", 5000)))
	c.ApplyNew(msg("m10", 10000))

	flat := c.Flatten()
	for i := 1; i < len(flat); i++ {
		if flat[i].CreatedAt.Before(flat[i-1].CreatedAt) {
			t.Fatalf("flatten not sorted at %d: %v", i, ids(flat))
		}
	}
}

// Equal timestamps keep their original page/slot order; no resort by ID.
func TestFlattenStableForEqualTimestamps(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 1, msg("zz", 1000), msg("aa", 1000)))

	wantOrder(t, c.Flatten(), "aa", "zz")
}

func TestApplyNewAppendsToNewestPage(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 2, msg("m3", 3000)))
	c.AddOlderPage(page(2, 2, msg("m2", 2000), msg("m1", 1000)))

	if replaced := c.ApplyNew(msg("m4", 4000)); replaced {
		t.Error("ApplyNew of a new ID reported replaced = true")
	}

	pages := c.Pages()
	if len(pages[0].Data) != 2 || pages[0].Data[0].ID != "m4" {
		t.Errorf("newest page = %v, want m4 at head", ids(pages[0].Data))
	}
	if pages[0].Pagination.Total != 1 {
		t.Errorf("newest page total = %d, want 1 (incremented)", pages[0].Pagination.Total)
	}
	wantOrder(t, c.Flatten(), "m1", "m2", "m3", "m4")
}

// Echo of an already-cached message replaces the entry, never duplicates it.
func TestApplyNewEchoReplaces(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 1, msg("m2", 2000), msg("m1", 1000)))

	echo := msg("m1", 1000)
	echo.Body = "confirmed"
	if replaced := c.ApplyNew(echo); !replaced {
		t.Error("ApplyNew of cached ID reported replaced = false")
	}

	flat := c.Flatten()
	wantOrder(t, flat, "m1", "m2")
	if flat[0].Body != "confirmed" {
		t.Errorf("body = %q, want confirmed (replaced)", flat[0].Body)
	}
}

// Applying the same event twice yields exactly one message with that ID.
func TestApplyNewIdempotent(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 1))

	m := msg("m1", 1000)
	c.ApplyNew(m)
	c.ApplyNew(m)

	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
	wantOrder(t, c.Flatten(), "m1")
}

// A pushed message that later arrives in a pagination fetch is dropped from
// the fetched page, regardless of processing order.
func TestAddOlderPageDedupsPushedMessage(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 2, msg("m4", 4000), msg("m3", 3000)))

	// m2 arrives over the channel before the older page resolves.
	c.ApplyNew(msg("m2", 2000))
	c.AddOlderPage(page(2, 2, msg("m2", 2000), msg("m1", 1000)))

	flat := c.Flatten()
	seen := map[string]int{}
	for _, m := range flat {
		seen[m.ID]++
	}
	if seen["m2"] != 1 {
		t.Errorf("m2 appears %d times, want 1", seen["m2"])
	}
	if len(flat) != 4 {
		t.Errorf("got %d messages, want 4: %v", len(flat), ids(flat))
	}
}

func TestApplyNewOnEmptyCache(t *testing.T) {
	c := New("c1")
	c.ApplyNew(msg("m1", 1000))

	wantOrder(t, c.Flatten(), "m1")
	if !c.Loaded() {
		t.Error("cache with a pushed message reports not loaded")
	}
}

func TestApplyReactionsFullReplace(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 1, msg("m1", 1000)))

	first := []chat.Reaction{{Emoji: "👍", UserID: "u1", DisplayName: "Ana"}}
	second := []chat.Reaction{
		{Emoji: "👍", UserID: "u2", DisplayName: "Boris"},
	}

	if !c.ApplyReactions("m1", first) {
		t.Fatal("ApplyReactions(m1) = false, want true")
	}
	if !c.ApplyReactions("m1", second) {
		t.Fatal("ApplyReactions(m1) = false on second apply")
	}

	got := c.Flatten()[0].Reactions
	if len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("reactions = %v, want last-applied state only", got)
	}
}

func TestApplyReactionsUnknownMessage(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 1, msg("m1", 1000)))

	if c.ApplyReactions("missing", nil) {
		t.Error("ApplyReactions(missing) = true, want false")
	}
}

func TestMarkOutboundReadIdempotent(t *testing.T) {
	c := New("c1")
	mine := msg("m1", 1000)
	mine.SenderID = "me"
	theirs := msg("m2", 2000)
	c.SetInitial(page(1, 1, theirs, mine))

	at := time.UnixMilli(5000)
	if n := c.MarkOutboundRead("me", at); n != 1 {
		t.Errorf("first mark changed %d, want 1", n)
	}
	if n := c.MarkOutboundRead("me", time.UnixMilli(6000)); n != 0 {
		t.Errorf("second mark changed %d, want 0 (idempotent)", n)
	}

	for _, m := range c.Flatten() {
		if m.ID == "m1" {
			if !m.IsRead || m.ReadAt == nil || !m.ReadAt.Equal(at) {
				t.Errorf("m1 = read:%v at:%v, want read at %v", m.IsRead, m.ReadAt, at)
			}
		}
		if m.ID == "m2" && m.IsRead {
			t.Error("counterpart message flipped to read")
		}
	}
}

func TestBeginFetchSerialized(t *testing.T) {
	c := New("c1")
	if !c.BeginFetch() {
		t.Fatal("first BeginFetch = false")
	}
	if c.BeginFetch() {
		t.Fatal("second BeginFetch = true while in flight")
	}
	c.EndFetch()
	if !c.BeginFetch() {
		t.Fatal("BeginFetch after EndFetch = false")
	}
}

func TestHasNextAndNextPage(t *testing.T) {
	c := New("c1")
	if c.HasNext() {
		t.Error("empty cache reports HasNext")
	}
	c.SetInitial(page(1, 3, msg("m3", 3000)))
	if !c.HasNext() || c.NextPage() != 2 {
		t.Errorf("HasNext=%v NextPage=%d, want true/2", c.HasNext(), c.NextPage())
	}
	c.AddOlderPage(page(2, 3, msg("m2", 2000)))
	c.AddOlderPage(page(3, 3, msg("m1", 1000)))
	if c.HasNext() {
		t.Error("HasNext = true after last page")
	}
}

func TestEmptyConversation(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 0))
	if !c.Empty() {
		t.Error("Empty = false for empty result set")
	}
	if !c.Loaded() {
		t.Error("Loaded = false after initial page resolved")
	}
}

// Interleaving pushes and fetches in any order keeps the flattened view
// sorted and ID-unique.
func TestInterleavedPushAndPagination(t *testing.T) {
	c := New("c1")
	c.SetInitial(page(1, 3, msg("m08", 8000), msg("m07", 7000)))
	c.ApplyNew(msg("m09", 9000))
	c.AddOlderPage(page(2, 3, msg("m06", 6000), msg("m05", 5000)))
	c.ApplyNew(msg("m10", 10000))
	c.AddOlderPage(page(3, 3, msg("m04", 4000)))

	flat := c.Flatten()
	if len(flat) != 7 {
		t.Fatalf("got %d messages, want 7: %v", len(flat), ids(flat))
	}
	for i := 1; i < len(flat); i++ {
		if flat[i].CreatedAt.Before(flat[i-1].CreatedAt) {
			t.Fatalf("not sorted at %d: %v", i, ids(flat))
		}
	}
	seen := map[string]bool{}
	for _, m := range flat {
		if seen[m.ID] {
			t.Fatalf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func BenchmarkFlatten(b *testing.B) {
	c := New("c1")
	var data []chat.Message
	for i := 0; i < 500; i++ {
		data = append(data, msg(fmt.Sprintf("m%04d", 500-i), int64((500-i)*1000)))
	}
	c.SetInitial(chat.Page{Data: data, Pagination: chat.Pagination{Page: 1, TotalPages: 1}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Flatten()
	}
}
