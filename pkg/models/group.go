package models

// Group is a named set of member user ids.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedTS int64    `json:"created_ts,omitempty"`
}

// HasMember reports whether user belongs to the group.
func (g *Group) HasMember(user string) bool {
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}

// GroupMessage is a message posted to a group. Unread starts as every member
// except the sender and only ever shrinks.
type GroupMessage struct {
	ID        string   `json:"id"`
	Sender    string   `json:"sender"`
	Group     string   `json:"group"`
	Body      string   `json:"body"`
	Unread    []string `json:"unread"`
	CreatedTS int64    `json:"created_ts"`
	Seq       uint64   `json:"seq"`
}

// UnreadBy reports whether user still has the message unread.
func (m *GroupMessage) UnreadBy(user string) bool {
	for _, u := range m.Unread {
		if u == user {
			return true
		}
	}
	return false
}

// RemoveUnread drops user from the unread list. Returns false if absent.
func (m *GroupMessage) RemoveUnread(user string) bool {
	for i, u := range m.Unread {
		if u == user {
			m.Unread = append(m.Unread[:i:i], m.Unread[i+1:]...)
			return true
		}
	}
	return false
}
