package keys

import (
	"fmt"
	"strings"
)

type UnreadKeyParts struct {
	Owner string // receiver or group member
	Peer  string // sender for direct, group id for group
	MsgID string
}

// ParseUnreadKey splits un:<receiver>:<sender>:<msg_id>.
func ParseUnreadKey(key string) (UnreadKeyParts, error) {
	return parseUnread(key, "un:")
}

// ParseGroupUnreadKey splits gun:<user_id>:<group_id>:<msg_id>.
func ParseGroupUnreadKey(key string) (UnreadKeyParts, error) {
	return parseUnread(key, "gun:")
}

func parseUnread(key, prefix string) (UnreadKeyParts, error) {
	if !strings.HasPrefix(key, prefix) {
		return UnreadKeyParts{}, fmt.Errorf("invalid unread key: %q", key)
	}
	parts := strings.Split(strings.TrimPrefix(key, prefix), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return UnreadKeyParts{}, fmt.Errorf("invalid unread key: %q", key)
	}
	return UnreadKeyParts{Owner: parts[0], Peer: parts[1], MsgID: parts[2]}, nil
}

// ParseUserGroupKey returns the group id of ug:<user_id>:<group_id>.
func ParseUserGroupKey(key string) (string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "ug" || parts[2] == "" {
		return "", fmt.Errorf("invalid user group key: %q", key)
	}
	return parts[2], nil
}
