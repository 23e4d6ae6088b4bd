package entity

import (
	"time"
)

// PrintSession 状态
const (
	SessionPending   = "PENDING"
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
)

// FailedPolicy decides whether a FAILED member still holds its session open.
type FailedPolicy string

const (
	// FailedAwaitsRetry: a FAILED member is expected to be retried, the session stays open.
	FailedAwaitsRetry FailedPolicy = "retry"
	// FailedIsTerminal: a FAILED member counts as finished for the session and
	// cannot be retried once the session has completed.
	FailedIsTerminal FailedPolicy = "terminal"
)

// ParseFailedPolicy 解析配置值，未知值回落到 retry
func ParseFailedPolicy(s string) FailedPolicy {
	if FailedPolicy(s) == FailedIsTerminal {
		return FailedIsTerminal
	}
	return FailedAwaitsRetry
}

// PrintSession 打印批次。汇总字段是成员订单的视图，由 Rollup 重新计算。
type PrintSession struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid"`
	Name               string     `json:"name" gorm:"size:128;not null"`
	Status             string     `json:"status" gorm:"size:16;not null;default:PENDING;index"`
	Notes              *string    `json:"notes" gorm:"type:text"`
	TotalEstimatedTime int        `json:"total_estimated_time" gorm:"not null;default:0"`
	TotalActualTime    int        `json:"total_actual_time" gorm:"not null;default:0"`
	OrderCount         int        `json:"order_count" gorm:"not null;default:0"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (PrintSession) TableName() string {
	return "production_print_sessions"
}

// Rollup re-derives totals and status from the live member orders.
// Status only moves forward. It reports whether anything changed.
func (s *PrintSession) Rollup(members []Order, policy FailedPolicy, now time.Time) bool {
	before := *s

	estimated, actual := 0, 0
	started := false
	finished := len(members) > 0
	var firstStart, lastDone *time.Time
	for i := range members {
		m := &members[i]
		if m.EstimatedPrintTime != nil {
			estimated += *m.EstimatedPrintTime
		}
		if m.ActualPrintTime != nil {
			actual += *m.ActualPrintTime
		}
		if m.PrintStartedAt != nil {
			started = true
			if firstStart == nil || m.PrintStartedAt.Before(*firstStart) {
				firstStart = m.PrintStartedAt
			}
		}
		if m.PrintCompletedAt != nil && (lastDone == nil || m.PrintCompletedAt.After(*lastDone)) {
			lastDone = m.PrintCompletedAt
		}
		if !finishedForSession(m.ProductionStatus, policy) {
			finished = false
		}
	}
	s.TotalEstimatedTime = estimated
	s.TotalActualTime = actual
	s.OrderCount = len(members)

	if s.Status == SessionPending && started {
		s.Status = SessionActive
		if s.StartedAt == nil {
			t := *firstStart
			s.StartedAt = &t
		}
	}
	if s.Status != SessionCompleted && finished {
		s.Status = SessionCompleted
		done := now
		if lastDone != nil {
			done = *lastDone
		}
		s.CompletedAt = &done
		// 成员未开始就全部结束时，开始时间与完成时间相同
		if s.StartedAt == nil {
			t := done
			s.StartedAt = &t
		}
	}

	return s.TotalEstimatedTime != before.TotalEstimatedTime ||
		s.TotalActualTime != before.TotalActualTime ||
		s.OrderCount != before.OrderCount ||
		s.Status != before.Status
}

func finishedForSession(status string, policy FailedPolicy) bool {
	switch status {
	case StatusPrinted, StatusShipped:
		return true
	case StatusFailed:
		return policy == FailedIsTerminal
	}
	return false
}
