package repository

import (
	"Parley/internal/model"
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CallRepo interface {
	CreateIfIdle(ctx context.Context, call *model.Call) (uint64, error)
	GetCall(ctx context.Context, callID uint64) (*model.Call, error)
	MarkRinging(ctx context.Context, callID uint64) (bool, error)
	Accept(ctx context.Context, callID uint64, answerSDP string, at time.Time) (bool, error)
	Finish(ctx context.Context, callID uint64, from []model.CallStatus, to model.CallStatus, reason string, at time.Time) (bool, error)
	UpdateSDP(ctx context.Context, callID uint64, offer bool, sdp string) (bool, error)

	ListActiveByUser(ctx context.Context, userID uint64) ([]*model.Call, error)
	ListByConversation(ctx context.Context, convID uint64, limit int) ([]*model.Call, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Call, error)
}

type callRepoImpl struct {
	db *gorm.DB
}

func NewCallRepo(db *gorm.DB) CallRepo {
	return &callRepoImpl{db: db}
}

// CreateIfIdle 占线检查与建单在同一事务：先按 user_id 升序锁住双方的 call_slots 行，
// 再统计非终态通话。返回占线的用户 ID，为 0 表示已创建。
func (s *callRepoImpl) CreateIfIdle(ctx context.Context, call *model.Call) (uint64, error) {
	ids := []uint64{call.CallerID, call.CalleeID}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var busy uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := make([]*model.CallSlot, 0, len(ids))
		for _, id := range ids {
			slots = append(slots, &model.CallSlot{UserID: id})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&slots).Error; err != nil {
			return err
		}

		var locked []*model.CallSlot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id IN ?", ids).
			Order("user_id").
			Find(&locked).Error; err != nil {
			return err
		}

		// 主叫优先判定
		for _, uid := range []uint64{call.CallerID, call.CalleeID} {
			var count int64
			if err := tx.Model(&model.Call{}).
				Where("(caller_id = ? OR callee_id = ?) AND status IN ?", uid, uid, model.ActiveCallStatuses).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				busy = uid
				return nil
			}
		}

		return tx.Create(call).Error
	})
	return busy, err
}

// GetCall 不存在时返回 nil
func (s *callRepoImpl) GetCall(ctx context.Context, callID uint64) (*model.Call, error) {
	var call model.Call
	err := s.db.WithContext(ctx).First(&call, callID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// MarkRinging INITIATED -> RINGING
func (s *callRepoImpl) MarkRinging(ctx context.Context, callID uint64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND status = ?", callID, model.CallInitiated).
		Update("status", model.CallRinging)
	return res.RowsAffected == 1, res.Error
}

// Accept 仅在未接通状态下接听
func (s *callRepoImpl) Accept(ctx context.Context, callID uint64, answerSDP string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND status IN ?", callID, model.PendingCallStatuses).
		Updates(map[string]interface{}{
			"status":      model.CallConnected,
			"answer_sdp":  answerSDP,
			"answered_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// Finish 进入终态，时长按库内 answered_at 计算，避免与并发接听产生偏差
func (s *callRepoImpl) Finish(ctx context.Context, callID uint64, from []model.CallStatus, to model.CallStatus, reason string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND status IN ?", callID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"ended_at":   at,
			"end_reason": reason,
			"duration":   gorm.Expr("IF(answered_at IS NULL, 0, GREATEST(TIMESTAMPDIFF(SECOND, answered_at, ?), 0))", at),
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateSDP 重协商时覆盖 offer/answer，终态通话不可修改
func (s *callRepoImpl) UpdateSDP(ctx context.Context, callID uint64, offer bool, sdp string) (bool, error) {
	column := "answer_sdp"
	if offer {
		column = "offer_sdp"
	}
	res := s.db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND status IN ?", callID, model.ActiveCallStatuses).
		Update(column, sdp)
	return res.RowsAffected == 1, res.Error
}

func (s *callRepoImpl) ListActiveByUser(ctx context.Context, userID uint64) ([]*model.Call, error) {
	var calls []*model.Call
	err := s.db.WithContext(ctx).
		Where("(caller_id = ? OR callee_id = ?) AND status IN ?", userID, userID, model.ActiveCallStatuses).
		Order("initiated_at DESC").
		Find(&calls).Error
	return calls, err
}

func (s *callRepoImpl) ListByConversation(ctx context.Context, convID uint64, limit int) ([]*model.Call, error) {
	var calls []*model.Call
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("initiated_at DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// ListPendingBefore 振铃超时扫描
func (s *callRepoImpl) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*model.Call, error) {
	var calls []*model.Call
	err := s.db.WithContext(ctx).
		Where("status IN ? AND initiated_at < ?", model.PendingCallStatuses, before).
		Order("initiated_at").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}
