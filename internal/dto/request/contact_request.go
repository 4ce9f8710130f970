package request

// SubmitContactRequest 发起好友申请
// 使用位置:
//   - handler/contact_request_handler.go: Submit
type SubmitContactRequest struct {
	// RecipientID 接收人用户ID，兼容旧客户端的 urn:uuid/大写格式
	RecipientID string `json:"recipient_id" binding:"required,max=64,userid"`
	// Message 申请附言
	Message string `json:"message" binding:"max=255"`
	// SkipPrivacyCheck 跳过接收方的隐私设置检查，仅供服务内部调用（如群内互加），不从请求体绑定
	SkipPrivacyCheck bool `json:"-"`
}

// ListContactRequestsQuery 好友申请列表查询
// 使用位置:
//   - handler/contact_request_handler.go: List
type ListContactRequestsQuery struct {
	Type   string `form:"type" binding:"omitempty,oneof=sent received"`
	Status string `form:"status" binding:"omitempty,oneof=pending accepted rejected cancelled all"`
}

// RespondContactRequest 处理好友申请
// 使用位置:
//   - handler/contact_request_handler.go: Respond
type RespondContactRequest struct {
	Action string `json:"action" binding:"required,oneof=accept reject"`
}

// FavoriteContactRequest 设置联系人星标
// 使用位置:
//   - handler/contact_handler.go: Favorite
type FavoriteContactRequest struct {
	// IsFavorite 缺省视为参数错误，避免误清星标
	IsFavorite *bool `json:"is_favorite" binding:"required"`
}
