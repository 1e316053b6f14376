package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/internal/paginator"
)

// ItemMessage là cấu trúc dữ liệu một item gửi tới Kafka và được consumer lưu lại.
// Các trường tóm tắt được lấy ra từ Payload.
type ItemMessage struct {
	RunID     string          `json:"run_id"`
	Origin    string          `json:"origin"`
	Category  string          `json:"category"`
	ItemID    string          `json:"item_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Number    string          `json:"number,omitempty"`
	Title     string          `json:"title,omitempty"`
	State     string          `json:"state,omitempty"`
	Author    string          `json:"author,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func NewItemMessage(runID, origin string, item paginator.Item) (ItemMessage, error) {
	if item.Payload == nil {
		return ItemMessage{}, fmt.Errorf("item %s has no payload", item.ID)
	}
	raw, err := json.Marshal(item.Payload)
	if err != nil {
		return ItemMessage{}, fmt.Errorf("marshal item %s: %w", item.ID, err)
	}

	msg := ItemMessage{
		RunID:     runID,
		Origin:    origin,
		Category:  string(item.Payload.Kind()),
		ItemID:    item.ID,
		UpdatedAt: item.UpdatedAt.UTC(),
		Payload:   raw,
	}
	switch p := item.Payload.(type) {
	case *gitee.Issue:
		msg.Number, msg.Title, msg.State = p.Number, p.Title, p.State
		if p.User != nil {
			msg.Author = p.User.Login
		}
	case *gitee.PullRequest:
		msg.Number, msg.Title, msg.State = fmt.Sprint(p.Number), p.Title, p.State
		if p.User != nil {
			msg.Author = p.User.Login
		}
	case *gitee.Repository:
		msg.Title = p.FullName
	}
	return msg, nil
}

func (m ItemMessage) columns() ItemColumns {
	return ItemColumns{
		Origin:        TruncateString(m.Origin, 255),
		ItemID:        TruncateString(m.ItemID, 64),
		ItemUpdatedAt: m.UpdatedAt,
		RunID:         m.RunID,
		Payload:       string(m.Payload),
	}
}
