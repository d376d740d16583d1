package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "tok-123", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestListMessages(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("auth header = %q", got)
		}
		if r.URL.Path != "/chat/conversations/c1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("limit") != "20" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(chat.Page{
			Data: []chat.Message{
				{ID: "m2", CreatedAt: time.UnixMilli(2000)},
				{ID: "m1", CreatedAt: time.UnixMilli(1000)},
			},
			Pagination: chat.Pagination{Page: 2, Limit: 20, Total: 22, TotalPages: 2},
		})
	})

	page, err := c.ListMessages(context.Background(), "c1", 2, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 2 || page.Data[0].ID != "m2" {
		t.Errorf("page data = %+v", page.Data)
	}
	if page.HasNext() {
		t.Error("HasNext = true for last page")
	}
}

func TestFetchErrorStatus(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.ListMessages(context.Background(), "c1", 1, 20)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fe.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", fe.Status)
	}
	if fe.AuthExpired() {
		t.Error("AuthExpired = true for 502")
	}
}

func TestAuthExpired(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.MarkRead(context.Background(), "c1")
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.AuthExpired() {
		t.Errorf("err = %v, want auth-expired FetchError", err)
	}
}

func TestSendMessageCarriesClientID(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["clientMessageId"] != "uuid-1" || req["content"] != "hello" {
			t.Errorf("request = %v", req)
		}
		_ = json.NewEncoder(w).Encode(chat.Message{ID: "uuid-1", Body: "hello"})
	})

	msg, err := c.SendMessage(context.Background(), "c1", "uuid-1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "uuid-1" {
		t.Errorf("echo id = %q, want uuid-1", msg.ID)
	}
}

func TestUnreadCount(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": 3}`))
	})

	n, err := c.UnreadCount(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestTransportError(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = c.ListConversations(ctx)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fe.Err == nil {
		t.Error("transport FetchError has nil Err")
	}
}
