package domain

import "github.com/shopspring/decimal"

// Share 参与分润的成员份额
type Share struct {
	AccountID string
	Base      decimal.Decimal
	Kind      EntryKind
}

// Allocation 单个成员的分润结果
type Allocation struct {
	AccountID string
	Base      decimal.Decimal
	Amount    decimal.Decimal
	Kind      EntryKind
}

// Distribute 按份额比例分润：每个成员的收益 = 份额基数 × 周期收益率。
// 金额截到分，零头留存在池内而不是凭空多发。
func Distribute(shares []Share, rate decimal.Decimal) []Allocation {
	allocations := make([]Allocation, 0, len(shares))
	for _, share := range shares {
		allocations = append(allocations, Allocation{
			AccountID: share.AccountID,
			Base:      share.Base,
			Amount:    share.Base.Mul(rate).RoundDown(2),
			Kind:      share.Kind,
		})
	}
	return allocations
}

// PoolProfit 全池应得收益，用于对账校验
func PoolProfit(shares []Share, rate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share.Base)
	}
	return total.Mul(rate)
}
