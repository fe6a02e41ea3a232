package keys

import (
	"fmt"
	"strings"
)

func GenUserKey(userID string) string { return fmt.Sprintf(UserKey, userID) }

func GenUserEmailKey(email string) string {
	return fmt.Sprintf(UserEmailKey, strings.ToLower(strings.TrimSpace(email)))
}

func GenUserGroupKey(userID, groupID string) string {
	return fmt.Sprintf(UserGroupKey, userID, groupID)
}

func GenGroupKey(groupID string) string { return fmt.Sprintf(GroupKey, groupID) }

func GenMessageKey(msgID string) string { return fmt.Sprintf(MessageKey, msgID) }

func GenGroupMsgKey(msgID string) string { return fmt.Sprintf(GroupMsgKey, msgID) }

// GenConvIndexKey places a message in its conversation, ordered by creation.
func GenConvIndexKey(convID string, ts int64, seq uint64) string {
	return fmt.Sprintf(ConvIndexKey, convID, PadTS(ts), PadSeq(seq))
}

func GenGroupIdxKey(groupID string, ts int64, seq uint64) string {
	return fmt.Sprintf(GroupIdxKey, groupID, PadTS(ts), PadSeq(seq))
}

func GenUnreadKey(receiver, sender, msgID string) string {
	return fmt.Sprintf(UnreadKey, receiver, sender, msgID)
}

func GenGroupUnreadKey(userID, groupID, msgID string) string {
	return fmt.Sprintf(GroupUnreadKey, userID, groupID, msgID)
}

// prefixes for range scans

func ConvPrefix(convID string) string { return "c:" + convID + ":" }

func GroupIdxPrefix(groupID string) string { return "gc:" + groupID + ":" }

func UserGroupPrefix(userID string) string { return "ug:" + userID + ":" }

func UnreadPrefix(receiver string) string { return "un:" + receiver + ":" }

func GroupUnreadPrefix(userID string) string { return "gun:" + userID + ":" }

const (
	MessagePrefix  = "m:"
	GroupMsgPrefix = "gm:"
)

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

// PadSeq keeps the low digits only; seq just breaks ties within one timestamp.
func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq%1_000_000)
}

// PrefixEnd returns the smallest key greater than every key with prefix.
func PrefixEnd(prefix string) []byte {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
