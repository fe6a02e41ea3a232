package keys

const (
	// notation dictionary for key formats:
	// u   = user
	// ue  = user by email
	// ug  = user → group membership
	// g   = group
	// m   = direct message
	// c   = conversation (sorted user pair) → message index
	// un  = unread direct message index for a receiver
	// gm  = group message
	// gc  = group → message index
	// gun = unread group message index for a member
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <user_id>, <msg_id>)

	UserKey      = "u:%s"        // u:<user_id>
	UserEmailKey = "ue:%s"       // ue:<lower(email)>
	UserGroupKey = "ug:%s:%s"    // ug:<user_id>:<group_id>
	GroupKey     = "g:%s"        // g:<group_id>
	MessageKey   = "m:%s"        // m:<msg_id>
	GroupMsgKey  = "gm:%s"       // gm:<msg_id>
	ConvIndexKey = "c:%s:%s:%s"  // c:<conv_id>:<ts>:<seq>
	GroupIdxKey  = "gc:%s:%s:%s" // gc:<group_id>:<ts>:<seq>

	UnreadKey      = "un:%s:%s:%s"  // un:<receiver>:<sender>:<msg_id>
	GroupUnreadKey = "gun:%s:%s:%s" // gun:<user_id>:<group_id>:<msg_id>

	// padding widths (fixed for lexicographic ordering)
	TSPadWidth  = 20 // e.g. %020d
	SeqPadWidth = 6  // e.g. %06d

	// system keys
	SystemVersionKey = "system:version"
	SchemaVersion    = "1"
)
