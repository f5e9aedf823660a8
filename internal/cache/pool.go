package cache

import "sync"

// RebuildPool 有界后台工作池，承接逻辑过期策略的异步缓存重建任务。
// 任务队列满时 TrySubmit 直接失败，读路径永远不会被重建任务阻塞。
type RebuildPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRebuildPool 启动 workers 个常驻协程，队列容量 queueSize。
func NewRebuildPool(workers, queueSize int) *RebuildPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	p := &RebuildPool{tasks: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// TrySubmit 非阻塞投递，队列满或池已关闭时返回 false。
func (p *RebuildPool) TrySubmit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close 停止接收新任务并等待在途任务完成。
func (p *RebuildPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
