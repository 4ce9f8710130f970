package model

import "time"

// 关系事件类型
const (
	EventRequestCreated       = "contact_request.created"
	EventRequestAccepted      = "contact_request.accepted"
	EventRequestRejected      = "contact_request.rejected"
	EventRequestCancelled     = "contact_request.cancelled"
	EventContactDeleted       = "contact.deleted"
	EventContactBlocked       = "contact.blocked"
	EventContactUnblocked     = "contact.unblocked"
	EventConversationCreated  = "conversation.created"
	EventRepairStaleRequest   = "repair.stale_request"
	EventRepairDuplicateConvo = "repair.duplicate_conversation"
)

// RelationEvent 关系变更事件，投递到消息队列供下游（推送、审计）消费
type RelationEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Region    Region    `json:"region"`
	ActorID   string    `json:"actor_id"`
	TargetID  string    `json:"target_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	PairKey   string    `json:"pair_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
