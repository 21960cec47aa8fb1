package projections

import "messageboard/internal/application/querycache"

// Query key names shared by reads and the writes that invalidate them.
const (
	messagesKeyName     = "messages"
	userMessagesKeyName = "userMessages"
	usernamesKeyName    = "usernames"
)

// MessagesKey is the key of the all-messages feed.
func MessagesKey() querycache.Key {
	return querycache.NewKey(messagesKeyName)
}

// UserMessagesKey is the key of one author's editor list.
func UserMessagesKey(userID string) querycache.Key {
	return querycache.NewKey(userMessagesKeyName, userID)
}

// UserMessagesPrefix matches every author's editor list.
func UserMessagesPrefix() querycache.Key {
	return querycache.NewKey(userMessagesKeyName)
}

// UsernamesKey is the key of the distinct-poster list.
func UsernamesKey() querycache.Key {
	return querycache.NewKey(usernamesKeyName)
}
