package model

import "time"

// 成员角色
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// ConversationMember 会话成员
// 用户侧的"删除会话"通过本行 DeletedAt 表达，而非删除 Conversation，
// 解除好友后重新私聊会得到新会话，旧消息不会复活。
// DeletedAt 是普通可空字段，所有读路径显式过滤
type ConversationMember struct {
	ConversationID string     `gorm:"column:conversation_id;primaryKey;type:varchar(40)" bson:"conversation_id" json:"conversation_id"`
	UserID         string     `gorm:"column:user_id;primaryKey;index;type:varchar(40)" bson:"user_id" json:"user_id"`
	Role           string     `gorm:"column:role;type:varchar(16);not null;default:member" bson:"role" json:"role"`
	IsHidden       bool       `gorm:"column:is_hidden;not null;default:false" bson:"is_hidden" json:"is_hidden"`
	DeletedAt      *time.Time `gorm:"column:deleted_at" bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	JoinedAt       time.Time  `gorm:"column:joined_at" bson:"joined_at" json:"joined_at"`
}

// TableName 指定表名
func (ConversationMember) TableName() string {
	return "conversation_member"
}

// NewMembers 按顺序构造成员行，第一个为 owner
func NewMembers(conversationID string, userIDs []string, now time.Time) []ConversationMember {
	members := make([]ConversationMember, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		role := RoleMember
		if len(members) == 0 {
			role = RoleOwner
		}
		members = append(members, ConversationMember{
			ConversationID: conversationID,
			UserID:         id,
			Role:           role,
			JoinedAt:       now,
		})
	}
	return members
}
