package constants

// 可信网关注入的身份信息（仅文档库分区）
const (
	HEADER_USER_ID        = "X-User-Id"
	HEADER_USER_REGION    = "X-User-Region"
	HEADER_GATEWAY_SECRET = "X-Gateway-Secret"
	COOKIE_USER_ID        = "uid"
)

const (
	MESSAGE_MAX_LENGTH    = 255 // 好友申请附言最大长度
	GROUP_MAX_MEMBERS     = 500 // 群聊/频道创建时最多的初始成员数
	ACCESS_TOKEN_SUBJECT  = "access_token"
	CONVERSATION_LIST_CAP = 1000 // 单次会话列表最多返回条数
)
