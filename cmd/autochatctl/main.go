package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ssahak93/autochat/internal/session"
	"github.com/ssahak93/autochat/internal/store"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	dbPath := session.DBPath(profileName)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: no archive for profile %q (run autochat first)\n", profileName)
		os.Exit(1)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "conversations":
		cmdConversations(db, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: autochatctl search <query>")
			os.Exit(1)
		}
		cmdSearch(db, strings.Join(args[1:], " "), *jsonFlag)
	case "unread":
		cmdUnread(db, *jsonFlag)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: autochatctl [--profile name] [--json] <command>

commands:
  conversations   list archived conversations
  search <query>  full-text search across archived messages
  unread          per-conversation unread counts from the last sync`)
}

func cmdConversations(db *store.DB, asJSON bool) {
	convs, err := db.ListConversations(100, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(convs)
		return
	}
	for _, c := range convs {
		name := c.Title
		if name == "" {
			name = c.CounterpartName
		}
		marker := " "
		if c.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %-36s  %-8s  %s\n", marker, c.ID, c.Kind, name)
	}
}

func cmdSearch(db *store.DB, query string, asJSON bool) {
	results, err := db.SearchMessages(query, "", 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(results)
		return
	}
	for _, r := range results {
		fmt.Printf("%s  [%s] %s: %s\n",
			r.Message.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Message.ConversationID,
			r.Message.SenderName,
			r.Snippet)
	}
}

func cmdUnread(db *store.DB, asJSON bool) {
	convs, err := db.ListConversations(100, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	type row struct {
		ConversationID string `json:"conversationId"`
		Title          string `json:"title"`
		Unread         int    `json:"unread"`
	}
	var rows []row
	total := 0
	for _, c := range convs {
		if c.UnreadCount == 0 {
			continue
		}
		name := c.Title
		if name == "" {
			name = c.CounterpartName
		}
		rows = append(rows, row{ConversationID: c.ID, Title: name, Unread: c.UnreadCount})
		total += c.UnreadCount
	}

	if asJSON {
		printJSON(rows)
		return
	}
	for _, r := range rows {
		fmt.Printf("%4d  %s\n", r.Unread, r.Title)
	}
	fmt.Printf("total: %d\n", total)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
