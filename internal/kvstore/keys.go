package kvstore

import "net/url"

// keyspace builds the per-user key layout. Every identifier is percent-encoded
// before it is joined, so a crafted id containing ":" can never break out of
// its segment and collide with another user's keys.
//
// Layout:
//
//	{prefix}:user:{user}:thread:{thread}:metadata
//	{prefix}:user:{user}:thread:{thread}:items
//	{prefix}:user:{user}:thread:{thread}:item:{item}
//	{prefix}:user:{user}:threads:index
type keyspace struct {
	prefix string
}

// escape percent-encodes everything outside [A-Za-z0-9-._~], including ":".
func escape(id string) string {
	return url.QueryEscape(id)
}

func (k keyspace) threadMetadata(userID, threadID string) string {
	return k.prefix + ":user:" + escape(userID) + ":thread:" + escape(threadID) + ":metadata"
}

func (k keyspace) threadItems(userID, threadID string) string {
	return k.prefix + ":user:" + escape(userID) + ":thread:" + escape(threadID) + ":items"
}

func (k keyspace) threadItem(userID, threadID, itemID string) string {
	return k.prefix + ":user:" + escape(userID) + ":thread:" + escape(threadID) + ":item:" + escape(itemID)
}

func (k keyspace) threadIndex(userID string) string {
	return k.prefix + ":user:" + escape(userID) + ":threads:index"
}
