package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutTopic 派息事件默认 topic
const PayoutTopic = "gdip.payouts"

// PayoutEvent 派息事件，钱包系统按 entry_id 幂等入账。
// 发布语义为 at-least-once，消费端必须按 entry_id 去重。
type PayoutEvent struct {
	EntryID   string          `json:"entry_id"`
	AccountID string          `json:"account_id"`
	UserID    string          `json:"user_id"`
	CycleID   string          `json:"cycle_id"`
	ClusterID string          `json:"cluster_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
