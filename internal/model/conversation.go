package model

import (
	"sort"
	"strings"
	"time"
)

// ConversationType 会话类型
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationChannel ConversationType = "channel"
)

// Valid 是否为已知会话类型
func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroup || t == ConversationChannel
}

// Conversation 会话
// 私聊会话对同一无序用户对（含自己与自己）最多只有一个双方均未删除的实例，
// 并发创建产生的重复由 SortCanonical 在读取时确定性收敛
type Conversation struct {
	ID          string           `gorm:"column:id;primaryKey;type:varchar(40)" bson:"_id" json:"id"`
	Type        ConversationType `gorm:"column:type;type:varchar(16);not null;index:idx_conversation_member_key,priority:1" bson:"type" json:"type"`
	WorkspaceID string           `gorm:"column:workspace_id;type:varchar(40);index;comment:工作区，仅关系库" bson:"workspace_id,omitempty" json:"workspace_id,omitempty"`
	// MemberKey 私聊成员的规范化键，群聊/频道为空
	MemberKey     string     `gorm:"column:member_key;type:varchar(96);index:idx_conversation_member_key,priority:2" bson:"member_key,omitempty" json:"member_key,omitempty"`
	Name          string     `gorm:"column:name;type:varchar(64)" bson:"name,omitempty" json:"name,omitempty"`
	Description   string     `gorm:"column:description;type:varchar(255)" bson:"description,omitempty" json:"description,omitempty"`
	IsPrivate     bool       `gorm:"column:is_private;not null;default:true" bson:"is_private" json:"is_private"`
	CreatedBy     string     `gorm:"column:created_by;type:varchar(40);not null" bson:"created_by" json:"created_by"`
	CreatedAt     time.Time  `gorm:"column:created_at" bson:"created_at" json:"created_at"`
	LastMessageAt *time.Time `gorm:"column:last_message_at" bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	DeletedAt     *time.Time `gorm:"column:deleted_at" bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID;references:ID" bson:"-" json:"members"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversation"
}

// DirectMemberKey 私聊成员键：排序后的成员 id 以冒号连接，自聊只有一个 id
func DirectMemberKey(a, b string) string {
	if a == b {
		return a
	}
	return PairKey(a, b)
}

// MemberIDs 返回成员 id 列表（有序）
func (c *Conversation) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	sort.Strings(ids)
	return ids
}

// Member 查找指定用户的成员记录
func (c *Conversation) Member(userID string) (*ConversationMember, bool) {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i], true
		}
	}
	return nil, false
}

// HasDeletedMember 任一成员删除过该会话即不可复用
func (c *Conversation) HasDeletedMember() bool {
	for _, m := range c.Members {
		if m.DeletedAt != nil {
			return true
		}
	}
	return false
}

// VisibleTo 会话对该用户是否可见：本身未删除，且用户是未删除的成员
func (c *Conversation) VisibleTo(userID string) bool {
	if c.DeletedAt != nil {
		return false
	}
	m, ok := c.Member(userID)
	return ok && m.DeletedAt == nil
}

// Peer 私聊中相对 userID 的另一方；自聊返回自己
func (c *Conversation) Peer(userID string) string {
	for _, id := range strings.Split(c.MemberKey, ":") {
		if id != userID {
			return id
		}
	}
	return userID
}

// IsSelfChat 是否为自聊
func (c *Conversation) IsSelfChat() bool {
	return c.Type == ConversationDirect && c.MemberKey != "" && !strings.Contains(c.MemberKey, ":")
}
