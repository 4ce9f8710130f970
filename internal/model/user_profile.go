// Package model 定义两个存储后端共用的领域实体
// 关系库通过 gorm tag 映射，文档库通过 bson tag 映射
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Region 账号所属分区
type Region string

const (
	RegionCN     Region = "cn"
	RegionGlobal Region = "global"
)

// Valid 是否为已知分区
func (r Region) Valid() bool {
	return r == RegionCN || r == RegionGlobal
}

// ParseRegion 解析分区标识，大小写不敏感
func ParseRegion(s string) (Region, bool) {
	r := Region(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// 隐私设置
const (
	PrivacyEveryone     = "everyone"      // 任何人可发起申请/私聊
	PrivacyContactsOnly = "contacts_only" // 仅联系人
)

// UserProfile 用户资料
// 由外部身份系统维护，本服务只读
type UserProfile struct {
	// ID 用户唯一标识
	// 关系库格式：U + 时间戳随机串；文档库为标准 UUID
	ID        string    `gorm:"column:id;primaryKey;type:varchar(40);comment:用户id" json:"id"`
	Email     string    `gorm:"column:email;type:varchar(128);comment:邮箱" json:"email"`
	Username  string    `gorm:"column:username;index;type:varchar(64);comment:用户名" json:"username"`
	FullName  string    `gorm:"column:full_name;type:varchar(128);comment:全名" json:"full_name"`
	AvatarURL string    `gorm:"column:avatar_url;type:varchar(255);comment:头像" json:"avatar_url"`
	Status    string    `gorm:"column:status;type:varchar(16);default:offline;comment:在线状态" json:"status"`
	Region    Region    `gorm:"column:region;type:varchar(16);not null;comment:分区 cn/global" json:"region"`
	Privacy   string    `gorm:"column:privacy;type:varchar(16);default:everyone;comment:隐私设置" json:"privacy"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (UserProfile) TableName() string {
	return "user_profile"
}

// AllowsNonContacts 是否允许非联系人发起
func (u *UserProfile) AllowsNonContacts() bool {
	return u.Privacy != PrivacyContactsOnly
}

// Summary 返回对外展示的资料摘要
func (u *UserProfile) Summary() ProfileSummary {
	return ProfileSummary{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		Status:    u.Status,
		Region:    u.Region,
	}
}

// ProfileSummary 列表接口中展开的用户摘要，两个后端字段统一为此结构
type ProfileSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Status    string `json:"status"`
	Region    Region `json:"region"`
}

// NormalizeUserID 归一化客户端传入的用户 id
// 旧客户端会传 urn:uuid: 或带花括号、大写的 UUID，这里统一成标准小写格式
func NormalizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// WorkspaceMember 工作区成员（仅关系库）
type WorkspaceMember struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;type:varchar(40)" json:"workspace_id"`
	UserID      string    `gorm:"column:user_id;primaryKey;type:varchar(40)" json:"user_id"`
	Role        string    `gorm:"column:role;type:varchar(16);default:member" json:"role"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (WorkspaceMember) TableName() string {
	return "workspace_member"
}
