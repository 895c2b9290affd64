package service

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/mongo"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

const maxCallEvents = 200

// CallAuditor 通话审计，写入失败不影响信令
type CallAuditor interface {
	Record(ctx context.Context, event *mongo.CallEvent)
	List(ctx context.Context, callID uint64) ([]*dto.CallEventDTO, error)
	Close()
}

type callAuditorImpl struct {
	repo      mongo.CallEventRepo
	retryChan chan *mongo.CallEvent
	wg        sync.WaitGroup
	stopChan  chan struct{}
}

// NewCallAuditor 初始化并启动异步补写工作池
func NewCallAuditor(repo mongo.CallEventRepo) CallAuditor {
	s := &callAuditorImpl{
		repo:      repo,
		retryChan: make(chan *mongo.CallEvent, 1024),
		stopChan:  make(chan struct{}),
	}

	workerCount := 2
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.retryWorker()
	}

	return s
}

// Record 同步写一次，失败则丢给补写队列，队列满直接丢弃
func (s *callAuditorImpl) Record(ctx context.Context, event *mongo.CallEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.TraceID == "" {
		event.TraceID = logger.TraceID(ctx)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.repo.SaveEvent(writeCtx, event); err != nil {
		select {
		case s.retryChan <- event:
		default:
			log.WarnContext(ctx, "call audit queue full, event dropped", "call_id", event.CallID, "event", event.Event)
		}
	}
}

func (s *callAuditorImpl) List(ctx context.Context, callID uint64) ([]*dto.CallEventDTO, error) {
	events, err := s.repo.ListByCall(ctx, callID, maxCallEvents)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.CallEventDTO, 0, len(events))
	for _, e := range events {
		item := &dto.CallEventDTO{}
		_ = copier.Copy(item, e)
		item.At = e.CreatedAt
		out = append(out, item)
	}
	return out, nil
}

func (s *callAuditorImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("Call auditor shut down gracefully")
}

func (s *callAuditorImpl) retryWorker() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.retryChan:
			backoff := time.Second
			for i := 0; i < 3; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := s.repo.SaveEvent(ctx, event)
				cancel()
				if err == nil {
					break
				}
				if i == 2 {
					log.Error("call audit write failed", "call_id", event.CallID, "event", event.Event, "err", err)
					break
				}
				time.Sleep(backoff)
				backoff *= 2
			}
		case <-s.stopChan:
			return
		}
	}
}

type nopCallAuditor struct{}

// NewNopCallAuditor 未配置 Mongo 时使用
func NewNopCallAuditor() CallAuditor { return nopCallAuditor{} }

func (nopCallAuditor) Record(context.Context, *mongo.CallEvent) {}

func (nopCallAuditor) List(context.Context, uint64) ([]*dto.CallEventDTO, error) {
	return []*dto.CallEventDTO{}, nil
}

func (nopCallAuditor) Close() {}
