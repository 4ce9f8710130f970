package redis

import "fmt"

// 键统一带分区前缀，两个分区即使共用一个 Redis 也不会互相读到
const keyPrefix = "regionchat"

// ConversationListKey 会话列表缓存键
func ConversationListKey(region, userID, workspaceID string) string {
	if workspaceID == "" {
		workspaceID = "-"
	}
	return fmt.Sprintf("%s:%s:conv_list:%s:%s", keyPrefix, region, userID, workspaceID)
}

// ConversationListPattern 某用户全部工作区的会话列表缓存
func ConversationListPattern(region, userID string) string {
	return fmt.Sprintf("%s:%s:conv_list:%s:*", keyPrefix, region, userID)
}
