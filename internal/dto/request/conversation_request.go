package request

// CreateConversationRequest 创建会话
// type=direct 时 member_ids 只能包含对方一人（传自己即为自聊）
// 使用位置:
//   - handler/conversation_handler.go: Create
type CreateConversationRequest struct {
	Type             string   `json:"type" binding:"required,oneof=direct group channel"`
	MemberIDs        []string `json:"member_ids" binding:"required,min=1,max=500,dive,required,max=64,userid"`
	Name             string   `json:"name" binding:"max=64"`
	Description      string   `json:"description" binding:"max=255"`
	SkipContactCheck bool     `json:"skip_contact_check"`
	IsPrivate        *bool    `json:"is_private"`
	WorkspaceID      string   `json:"workspace_id" binding:"max=40"`
}

// GetConversationsQuery 会话查询，带 conversationId 时返回单个会话
// 使用位置:
//   - handler/conversation_handler.go: Get
type GetConversationsQuery struct {
	ConversationID string `form:"conversationId" binding:"max=64"`
	WorkspaceID    string `form:"workspaceId" binding:"max=40"`
}
