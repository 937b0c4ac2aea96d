package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/cluster/domain"
	"github.com/wyfcoding/gdip/pkg/cache"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// 详情缓存 TTL；读多写少，短 TTL 下不做主动失效
const detailCacheTTL = 10 * time.Second

// MemberView 集群成员视图
type MemberView struct {
	Position  int    `json:"position"`
	AccountID string `json:"account_id"`
	State     string `json:"state"`
}

// ClusterDetail GDC 详情读模型
type ClusterDetail struct {
	ClusterID        string          `json:"cluster_id"`
	Number           int64           `json:"number"`
	Capacity         int             `json:"capacity"`
	CurrentFill      int             `json:"current_fill"`
	Status           string          `json:"status"`
	TotalCapital     decimal.Decimal `json:"total_capital"`
	CyclesCompleted  int             `json:"cycles_completed"`
	AverageROI       decimal.Decimal `json:"average_roi"`
	PrimaryCommodity string          `json:"primary_commodity"`
	ActiveCycleID    string          `json:"active_cycle_id,omitempty"`
	Members          []MemberView    `json:"members"`
}

// ClusterSummary 管理端列表项
type ClusterSummary struct {
	ClusterID        string          `json:"cluster_id"`
	Number           int64           `json:"number"`
	Capacity         int             `json:"capacity"`
	CurrentFill      int             `json:"current_fill"`
	Status           string          `json:"status"`
	TotalCapital     decimal.Decimal `json:"total_capital"`
	CyclesCompleted  int             `json:"cycles_completed"`
	AverageROI       decimal.Decimal `json:"average_roi"`
	PrimaryCommodity string          `json:"primary_commodity"`
}

// QueryService 集群查询服务，详情走 Redis 旁路缓存
type QueryService struct {
	clusters domain.ClusterRepository
	slots    domain.SlotRepository
	cache    *cache.RedisCache
	logger   *slog.Logger
}

// NewQueryService 创建集群查询服务
func NewQueryService(
	clusters domain.ClusterRepository,
	slots domain.SlotRepository,
	redisCache *cache.RedisCache,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		clusters: clusters,
		slots:    slots,
		cache:    redisCache,
		logger:   logger,
	}
}

// GetDetail 返回 GDC 详情；缓存未命中时回源并写缓存
func (s *QueryService) GetDetail(ctx context.Context, clusterID string) (*ClusterDetail, error) {
	cacheKey := fmt.Sprintf("gdip:cluster:detail:%s", clusterID)

	if s.cache != nil {
		var detail ClusterDetail
		hit, err := s.cache.GetJSON(ctx, cacheKey, &detail)
		if err != nil {
			s.logger.WarnContext(ctx, "cluster detail cache read failed",
				"cluster_id", clusterID, "error", err)
		} else if hit {
			return &detail, nil
		}
	}

	cluster, err := s.clusters.Get(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, domain.ErrClusterNotFound
	}

	slots, err := s.slots.ListActive(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	members := make([]MemberView, 0, len(slots))
	for _, slot := range slots {
		members = append(members, MemberView{
			Position:  slot.Position,
			AccountID: slot.AccountID,
			State:     slot.State.String(),
		})
	}

	detail := &ClusterDetail{
		ClusterID:        cluster.ClusterID,
		Number:           cluster.Number,
		Capacity:         cluster.Capacity,
		CurrentFill:      cluster.CurrentFill,
		Status:           cluster.Status.String(),
		TotalCapital:     cluster.TotalCapital,
		CyclesCompleted:  cluster.CyclesCompleted,
		AverageROI:       cluster.AverageROI,
		PrimaryCommodity: cluster.PrimaryCommodity,
		ActiveCycleID:    cluster.ActiveCycleID,
		Members:          members,
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, detail, detailCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "cluster detail cache write failed",
				"cluster_id", clusterID, "error", err)
		}
	}

	return detail, nil
}

// List 管理端分页列出集群
func (s *QueryService) List(ctx context.Context, page, pageSize int) ([]*ClusterSummary, *utils.Pagination, error) {
	p := utils.NewPagination(page, pageSize, 0)

	clusters, total, err := s.clusters.List(ctx, p.Offset(), p.Limit())
	if err != nil {
		return nil, nil, err
	}

	summaries := make([]*ClusterSummary, 0, len(clusters))
	for _, c := range clusters {
		summaries = append(summaries, &ClusterSummary{
			ClusterID:        c.ClusterID,
			Number:           c.Number,
			Capacity:         c.Capacity,
			CurrentFill:      c.CurrentFill,
			Status:           c.Status.String(),
			TotalCapital:     c.TotalCapital,
			CyclesCompleted:  c.CyclesCompleted,
			AverageROI:       c.AverageROI,
			PrimaryCommodity: c.PrimaryCommodity,
		})
	}

	return summaries, utils.NewPagination(page, pageSize, total), nil
}
