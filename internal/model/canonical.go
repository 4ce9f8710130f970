package model

import "sort"

// LessCanonical 私聊去重的唯一排序规则：
// last_message_at 降序（无消息的排在有消息的之后），created_at 升序，id 升序。
// 服务端列表、解析器与客户端缓存必须共用此规则，否则不同位置会选出不同的规范会话
func LessCanonical(a, b *Conversation) bool {
	switch {
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return true
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return false
	case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
		return a.LastMessageAt.After(*b.LastMessageAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortCanonical 原地按规范顺序排序
func SortCanonical(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return LessCanonical(&convs[i], &convs[j])
	})
}

// Canonical 返回候选中的规范会话，候选为空返回 false
func Canonical(convs []Conversation) (Conversation, bool) {
	if len(convs) == 0 {
		return Conversation{}, false
	}
	best := 0
	for i := 1; i < len(convs); i++ {
		if LessCanonical(&convs[i], &convs[best]) {
			best = i
		}
	}
	return convs[best], true
}

// DedupeDirect 同一成员键的私聊只保留规范的一个，群聊/频道原样保留。
// 返回结果保持输入中各会话首次出现的相对顺序
func DedupeDirect(convs []Conversation) []Conversation {
	winner := make(map[string]int)
	for i := range convs {
		c := &convs[i]
		if c.Type != ConversationDirect || c.MemberKey == "" {
			continue
		}
		if j, ok := winner[c.MemberKey]; !ok || LessCanonical(c, &convs[j]) {
			winner[c.MemberKey] = i
		}
	}
	out := make([]Conversation, 0, len(convs))
	for i := range convs {
		c := convs[i]
		if c.Type == ConversationDirect && c.MemberKey != "" && winner[c.MemberKey] != i {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortByActivity 会话列表的展示顺序：最近活跃在前
func SortByActivity(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		ai, aj := convs[i].CreatedAt, convs[j].CreatedAt
		if convs[i].LastMessageAt != nil {
			ai = *convs[i].LastMessageAt
		}
		if convs[j].LastMessageAt != nil {
			aj = *convs[j].LastMessageAt
		}
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return convs[i].ID < convs[j].ID
	})
}
