package types

import (
	"encoding/json"
	"errors"
)

// ============================================================================
//                              自我播报
// ============================================================================

// 播报解析相关错误
var (
	// ErrMalformedAnnouncement 播报载荷无法解析
	ErrMalformedAnnouncement = errors.New("malformed announcement")
	// ErrIncompleteAnnouncement 播报缺少 id 或 name 字段
	ErrIncompleteAnnouncement = errors.New("announcement missing id or name")
)

// Announcement 目标实例在播报通道上周期性广播的自我介绍
type Announcement struct {
	// ID 目标令牌，Embedded 模式下同时是总线通道名
	ID string `json:"id"`

	// Name 展示名称
	Name string `json:"name"`

	// Timestamp 发送方时间戳（epoch 毫秒），仅供参考，
	// 接收方以本地收到时间作为 LastSeen
	Timestamp int64 `json:"timestamp"`
}

// Valid 检查播报是否携带必需字段
func (a Announcement) Valid() bool {
	return a.ID != "" && a.Name != ""
}

// ParseAnnouncement 解析播报载荷
//
// 兼容两种形态：直接的 JSON 对象，或再经过一次字符串序列化的
// JSON 对象（发送方先 Marshal 成对象字符串、又把该字符串作为
// JSON string 发出时出现）。解析失败或缺少必需字段返回错误，
// 由调用方决定丢弃。
func ParseAnnouncement(payload string) (Announcement, error) {
	var ann Announcement
	if err := json.Unmarshal([]byte(payload), &ann); err != nil {
		// 兼容字符串包裹的对象
		var inner string
		if err2 := json.Unmarshal([]byte(payload), &inner); err2 != nil {
			return Announcement{}, ErrMalformedAnnouncement
		}
		if err2 := json.Unmarshal([]byte(inner), &ann); err2 != nil {
			return Announcement{}, ErrMalformedAnnouncement
		}
	}

	if !ann.Valid() {
		return Announcement{}, ErrIncompleteAnnouncement
	}
	return ann, nil
}

// Encode 序列化播报为 JSON 字符串
func (a Announcement) Encode() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
