package model

import "time"

// Contact 单向存储的联系人关系
// 一对用户没有任何 Contact 行即视为未建立联系，与申请历史无关
type Contact struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(40)" bson:"_id" json:"id"`
	UserID        string    `gorm:"column:user_id;uniqueIndex:uk_contact_pair,priority:1;type:varchar(40);not null;comment:用户id" bson:"user_id" json:"user_id"`
	ContactUserID string    `gorm:"column:contact_user_id;uniqueIndex:uk_contact_pair,priority:2;index;type:varchar(40);not null;comment:联系人id" bson:"contact_user_id" json:"contact_user_id"`
	IsFavorite    bool      `gorm:"column:is_favorite;not null;default:false" bson:"is_favorite" json:"is_favorite"`
	IsBlocked     bool      `gorm:"column:is_blocked;not null;default:false;comment:user_id 是否拉黑了 contact_user_id" bson:"is_blocked" json:"is_blocked"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" bson:"updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Contact) TableName() string {
	return "contact"
}

// ContactView 联系人列表项
type ContactView struct {
	Contact
	Profile ProfileSummary `json:"profile"`
}

// Blocked 任一方向存在拉黑
func Blocked(rows []Contact) bool {
	for _, c := range rows {
		if c.IsBlocked {
			return true
		}
	}
	return false
}

// Connected 存在未拉黑的联系人行即视为已建立联系
func Connected(rows []Contact) bool {
	for _, c := range rows {
		if !c.IsBlocked {
			return true
		}
	}
	return false
}
