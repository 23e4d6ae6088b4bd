package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService 打印批次
type SessionService struct {
	*base
}

type CreateSessionRequest struct {
	Name     string   `json:"name"`
	OrderIDs []string `json:"order_ids"`
	Notes    *string  `json:"notes"`
}

// SessionDetail 批次及其成员订单
type SessionDetail struct {
	*entity.PrintSession
	Orders []entity.Order `json:"orders"`
}

// Create 新建批次。任一订单已属于其他批次时整体拒绝，不写入任何数据
func (s *SessionService) Create(ctx context.Context, req *CreateSessionRequest) (*SessionDetail, error) {
	ids := dedupe(req.OrderIDs)
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Session " + s.now().Format("2006-01-02 15:04")
	}

	sess := &entity.PrintSession{
		ID:     uuid.New().String(),
		Name:   name,
		Status: entity.SessionPending,
		Notes:  req.Notes,
	}
	var members []entity.Order
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		members = make([]entity.Order, 0, len(ids))
		for _, id := range ids {
			o, err := tx.Orders().FindByID(ctx, id)
			if err != nil {
				return notFound(err, "order", id)
			}
			if o.PrintSessionID != nil {
				return fmt.Errorf("%w: order %s belongs to session %s", ErrAlreadyAssigned, o.ID, *o.PrintSessionID)
			}
			sid := sess.ID
			o.PrintSessionID = &sid
			members = append(members, *o)
		}

		sess.Rollup(members, s.policy, s.now())
		if err := tx.Sessions().Create(ctx, sess); err != nil {
			return fmt.Errorf("创建打印批次失败: %w", err)
		}
		for i := range members {
			if err := tx.Orders().Update(ctx, &members[i]); err != nil {
				return fmt.Errorf("分配订单到批次失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("create print session rejected", zap.Strings("order_ids", ids), zap.Error(err))
		return nil, err
	}

	s.logger.Info("print session created",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
		zap.Int("order_count", sess.OrderCount),
		zap.Int("total_estimated_time", sess.TotalEstimatedTime),
	)
	detail := &SessionDetail{PrintSession: sess, Orders: members}
	s.publish(ctx, s.event(events.SessionCreated, sess.ID, detail))
	return detail, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Recompute 按成员当前状态重算汇总
func (s *SessionService) Recompute(ctx context.Context, id string) (*SessionDetail, error) {
	return s.load(ctx, id)
}

// Get 读取时顺带重算，保证汇总不会过期
func (s *SessionService) Get(ctx context.Context, id string) (*SessionDetail, error) {
	return s.load(ctx, id)
}

// load 先无锁读取，只有汇总过期时才加锁写回
func (s *SessionService) load(ctx context.Context, id string) (*SessionDetail, error) {
	detail, changed, err := s.refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, s.event(events.SessionUpdated, id, detail.PrintSession))
	}
	return detail, nil
}

func (s *SessionService) refresh(ctx context.Context, id string) (*SessionDetail, bool, error) {
	sess, err := s.store.Sessions().FindByID(ctx, id)
	if err != nil {
		return nil, false, notFound(err, "print session", id)
	}
	members, err := s.store.Orders().FindBySessionID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	snapshot := *sess
	if !snapshot.Rollup(members, s.policy, s.now()) {
		return &SessionDetail{PrintSession: sess, Orders: members}, false, nil
	}

	var detail *SessionDetail
	var changed bool
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		locked, c, err := s.recomputeSession(ctx, tx, id)
		if err != nil {
			return err
		}
		members, err := tx.Orders().FindBySessionID(ctx, id)
		if err != nil {
			return err
		}
		detail = &SessionDetail{PrintSession: locked, Orders: members}
		changed = c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return detail, changed, nil
}

// List status 为空或 ALL 时不过滤
func (s *SessionService) List(ctx context.Context, status string) ([]entity.PrintSession, error) {
	if status == "ALL" {
		status = ""
	}
	switch status {
	case "", entity.SessionPending, entity.SessionActive, entity.SessionCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown session status %q", ErrInvalidStatus, status)
	}

	all, err := s.store.Sessions().List(ctx, "")
	if err != nil {
		return nil, err
	}
	sessions := make([]entity.PrintSession, 0, len(all))
	var updated []events.Event
	for i := range all {
		detail, changed, err := s.refresh(ctx, all[i].ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sess := detail.PrintSession
		if changed {
			updated = append(updated, s.event(events.SessionUpdated, sess.ID, sess))
		}
		if status == "" || sess.Status == status {
			sessions = append(sessions, *sess)
		}
	}
	s.publish(ctx, updated...)
	return sessions, nil
}

// Delete 只允许删除尚未开始的批次，成员订单回到未分配状态
func (s *SessionService) Delete(ctx context.Context, id string) error {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		// 与状态流转保持同样的加锁顺序：先订单，后批次
		members, err := tx.Orders().FindBySessionID(ctx, id)
		if err != nil {
			return err
		}
		locked := make([]*entity.Order, 0, len(members))
		for i := range members {
			o, err := tx.Orders().FindByID(ctx, members[i].ID)
			if err != nil {
				return err
			}
			locked = append(locked, o)
		}
		sess, _, err := s.recomputeSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if sess.Status != entity.SessionPending {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, sess.Status)
		}
		for _, o := range locked {
			if o.PrintSessionID == nil || *o.PrintSessionID != id {
				continue
			}
			o.PrintSessionID = nil
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
		}
		return tx.Sessions().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("print session deleted", zap.String("session_id", id))
	s.publish(ctx, s.event(events.SessionDeleted, id, nil))
	return nil
}
