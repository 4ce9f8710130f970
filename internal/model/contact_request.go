package model

import (
	"time"

	"gorm.io/gorm"
)

// RequestStatus 好友申请状态
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Active pending 与 accepted 都占用这一对用户的唯一名额
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestAccepted
}

// ContactRequest 有向的好友申请
// 同一对用户（不分方向）同时最多一条 active 申请；
// 主要由状态机先清理再创建来保证，ActivePairKey 上的唯一索引只是兜底
type ContactRequest struct {
	ID          string        `gorm:"column:id;primaryKey;type:varchar(40)" bson:"_id" json:"id"`
	RequesterID string        `gorm:"column:requester_id;index;type:varchar(40);not null;comment:申请人" bson:"requester_id" json:"requester_id"`
	RecipientID string        `gorm:"column:recipient_id;index;type:varchar(40);not null;comment:接收人" bson:"recipient_id" json:"recipient_id"`
	Message     string        `gorm:"column:message;type:varchar(255);comment:申请附言" bson:"message" json:"message"`
	Status      RequestStatus `gorm:"column:status;type:varchar(16);index;not null" bson:"status" json:"status"`
	Region      Region        `gorm:"column:region;type:varchar(16);not null" bson:"region" json:"region"`
	// ActivePairKey 仅在 active 状态下有值，其余状态为 NULL，唯一索引允许多个 NULL
	ActivePairKey *string   `gorm:"column:active_pair_key;uniqueIndex;type:varchar(96)" bson:"active_pair_key,omitempty" json:"-"`
	CreatedAt     time.Time `gorm:"column:created_at" bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" bson:"updated_at" json:"updated_at"`
}

// TableName 指定表名
func (ContactRequest) TableName() string {
	return "contact_request"
}

// PairKey 返回无序用户对的规范化键
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// SyncActivePairKey 按当前状态刷新 ActivePairKey
func (r *ContactRequest) SyncActivePairKey() {
	if r.Status.Active() {
		key := PairKey(r.RequesterID, r.RecipientID)
		r.ActivePairKey = &key
		return
	}
	r.ActivePairKey = nil
}

// BeforeSave GORM Hook：保存前同步 ActivePairKey
func (r *ContactRequest) BeforeSave(tx *gorm.DB) error {
	r.SyncActivePairKey()
	return nil
}

// Involves 申请是否属于这一对用户（不分方向）
func (r *ContactRequest) Involves(a, b string) bool {
	return (r.RequesterID == a && r.RecipientID == b) || (r.RequesterID == b && r.RecipientID == a)
}

// Other 返回申请中相对 userID 的另一方
func (r *ContactRequest) Other(userID string) string {
	if r.RequesterID == userID {
		return r.RecipientID
	}
	return r.RequesterID
}

// ContactRequestView 申请列表项，展开双方资料摘要
type ContactRequestView struct {
	ContactRequest
	Requester *ProfileSummary `json:"requester,omitempty"`
	Recipient *ProfileSummary `json:"recipient,omitempty"`
}
