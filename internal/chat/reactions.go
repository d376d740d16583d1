package chat

// ReactionGroup is the rendered form of all reactions with one emoji: a count
// plus the display names of the users behind it.
type ReactionGroup struct {
	Emoji string
	Count int
	Users []string
}

// GroupReactions collapses a reaction list for rendering. At most one
// reaction per (user, emoji) pair counts; duplicates from re-delivery
// collapse silently. Group order follows first appearance in the list.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	var groups []ReactionGroup
	index := make(map[string]int)
	seen := make(map[[2]string]bool)

	for _, r := range reactions {
		key := [2]string{r.UserID, r.Emoji}
		if seen[key] {
			continue
		}
		seen[key] = true

		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.DisplayName)
	}
	return groups
}

// ReactedBy reports whether the given user already reacted with the emoji.
func ReactedBy(reactions []Reaction, userID, emoji string) bool {
	for _, r := range reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}
