package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
)

// FilterAll 不限制该维度
const FilterAll = "ALL"

// QueueService 生产队列调度策略，只读
type QueueService struct {
	*base
}

// QueueFilter 零值表示不过滤
type QueueFilter struct {
	Status   string
	Priority int
}

// QueueSummary 队列汇总。未知时长计 0 但单独计数
type QueueSummary struct {
	Total              int            `json:"total"`
	TotalEstimatedTime int            `json:"total_estimated_time"`
	KnownTimeCount     int            `json:"known_time_count"`
	UnknownTimeCount   int            `json:"unknown_time_count"`
	PerStatusCount     map[string]int `json:"per_status_count"`
}

type QueueView struct {
	Items   []entity.Order `json:"items"`
	Summary QueueSummary   `json:"summary"`
}

// ParseQueueFilter 解析查询参数，空值和 ALL 表示不过滤
func ParseQueueFilter(status, priority string) (QueueFilter, error) {
	var f QueueFilter

	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && status != FilterAll {
		if !entity.ValidStatus(status) {
			return f, fmt.Errorf("%w: unknown production status %q", ErrInvalidStatus, status)
		}
		f.Status = status
	}

	priority = strings.TrimSpace(priority)
	if priority != "" && !strings.EqualFold(priority, FilterAll) {
		p, err := strconv.Atoi(priority)
		if err != nil || p < entity.PriorityUrgent || p > entity.PriorityBacklog {
			return f, fmt.Errorf("%w: priority filter must be 1..5, got %q", ErrInvalidPriority, priority)
		}
		f.Priority = p
	}
	return f, nil
}

// List 按优先级升序、入队时间升序返回匹配订单，每次调用重新计算
func (s *QueueService) List(ctx context.Context, f QueueFilter) ([]entity.Order, error) {
	orders, err := s.store.Orders().FindByStatusAndPriority(ctx, repository.OrderQuery{
		Status:   f.Status,
		Priority: f.Priority,
	})
	if err != nil {
		return nil, err
	}
	SortQueue(orders)
	return orders, nil
}

// Snapshot 队列和汇总
func (s *QueueService) Snapshot(ctx context.Context, f QueueFilter) (*QueueView, error) {
	orders, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []entity.Order{}
	}
	return &QueueView{Items: orders, Summary: Aggregate(orders)}, nil
}

// SortQueue 稳定排序：优先级，入队时间，市场订单号
func SortQueue(orders []entity.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := &orders[i], &orders[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.MarketplaceOrderID < b.MarketplaceOrderID
	})
}

// Aggregate 纯函数汇总
func Aggregate(orders []entity.Order) QueueSummary {
	sum := QueueSummary{
		Total:          len(orders),
		PerStatusCount: make(map[string]int, len(entity.Statuses())),
	}
	for _, st := range entity.Statuses() {
		sum.PerStatusCount[st] = 0
	}
	for i := range orders {
		o := &orders[i]
		sum.PerStatusCount[o.ProductionStatus]++
		if o.EstimatedPrintTime == nil {
			sum.UnknownTimeCount++
			continue
		}
		sum.KnownTimeCount++
		sum.TotalEstimatedTime += *o.EstimatedPrintTime
	}
	return sum
}
