package respond

import "regionchat_server/internal/model"

// RespondContactResult 处理好友申请的结果
// 使用位置:
//   - internal/service/contact/service.go: Respond
type RespondContactResult struct {
	Request *model.ContactRequestView `json:"request"`
	// Contact 接受后调用方一侧的联系人行，拒绝时为空
	Contact *model.ContactView `json:"contact,omitempty"`
}
