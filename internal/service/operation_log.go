// internal/service/operation_log.go
package service

import (
	"sync"

	"stone-hmi-service/internal/model"
)

const defaultOperationLogSize = 200

// OperationLog keeps the most recent display operations in memory
type OperationLog struct {
	mu    sync.RWMutex
	ops   []model.DisplayOperation
	next  int
	full  bool
	total int64
}

// NewOperationLog creates a log holding at most size operations
func NewOperationLog(size int) *OperationLog {
	if size <= 0 {
		size = defaultOperationLogSize
	}
	return &OperationLog{ops: make([]model.DisplayOperation, size)}
}

// Add records an operation, overwriting the oldest when full
func (l *OperationLog) Add(op model.DisplayOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops[l.next] = op
	l.next = (l.next + 1) % len(l.ops)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Recent returns up to limit operations, newest first. A limit <= 0 returns all.
func (l *OperationLog) Recent(limit int) []model.DisplayOperation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.full {
		n = len(l.ops)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]model.DisplayOperation, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.ops)) % len(l.ops)
		out = append(out, l.ops[idx])
	}
	return out
}

// Total returns how many operations were ever recorded
func (l *OperationLog) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
