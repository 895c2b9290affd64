package workerpool

import (
	"hash/fnv"
	log "log/slog"
	"sync"
	"sync/atomic"
)

// Task 定义任务函数类型
type Task func()

// KeyedPool 按 key 分片的 worker pool，同一 key 的任务落在同一个队列里按提交顺序执行
type KeyedPool struct {
	queues  []chan Task
	wg      sync.WaitGroup
	closed  atomic.Bool
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// New 创建分片 worker pool
// shards: 分片（worker）数量
// queueSize: 每个分片的队列长度
func New(shards int, queueSize int) *KeyedPool {
	if shards <= 0 {
		shards = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	p := &KeyedPool{queues: make([]chan Task, shards)}
	for i := range p.queues {
		p.queues[i] = make(chan Task, queueSize)
		p.wg.Add(1)
		go p.worker(i, p.queues[i])
	}

	log.Info("Worker pool started", "shards", shards, "queue_size", queueSize)
	return p
}

func (p *KeyedPool) worker(id int, queue chan Task) {
	defer p.wg.Done()
	for task := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Task panic recovered", "worker_id", id, "panic", r)
				}
			}()
			task()
		}()
	}
}

// TrySubmit 非阻塞提交，队列满或已关闭时丢弃并返回 false
func (p *KeyedPool) TrySubmit(key string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return false
	}

	select {
	case p.queues[p.shard(key)] <- task:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped 因队列满被丢弃的任务数
func (p *KeyedPool) Dropped() uint64 {
	return p.dropped.Load()
}

// Shutdown 停止接收新任务，等待已入队任务执行完
func (p *KeyedPool) Shutdown() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	log.Info("Worker pool shutdown completed", "dropped", p.dropped.Load())
}

func (p *KeyedPool) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}
