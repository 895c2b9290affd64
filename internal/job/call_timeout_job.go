package job

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/redis"
	"Parley/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const callTimeoutLockTTL = 30 * time.Second

// CallTimeoutJob 扫描超时未接听的通话，多实例部署时由分布式锁保证只有一个实例执行
type CallTimeoutJob struct {
	callSvc service.CallService
	now     func() time.Time
}

func NewCallTimeoutJob(callSvc service.CallService) *CallTimeoutJob {
	return &CallTimeoutJob{
		callSvc: callSvc,
		now:     time.Now,
	}
}

func (s *CallTimeoutJob) Run() {
	ctx := logger.NewTraceContext(context.Background(), "job-call-timeout")
	ctx, cancel := context.WithTimeout(ctx, callTimeoutLockTTL)
	defer cancel()

	owner := uuid.NewString()
	ok, err := redis.TryLock(ctx, consts.CallTimeoutLock, owner, callTimeoutLockTTL, 1)
	if err != nil {
		log.ErrorContext(ctx, "call timeout lock error", "err", err)
		return
	}
	if !ok {
		log.DebugContext(ctx, "call timeout sweep held by another instance")
		return
	}
	defer redis.UnLock(context.WithoutCancel(ctx), consts.CallTimeoutLock, owner)

	n, err := s.callSvc.ExpireRinging(ctx, s.now())
	if err != nil {
		log.ErrorContext(ctx, "expire ringing calls error", "err", err, "expired", n)
		return
	}
	if n > 0 {
		log.InfoContext(ctx, "expired ringing calls", "count", n)
	}
}
