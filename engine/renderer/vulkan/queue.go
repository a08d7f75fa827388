package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// queueLocks serializes access to each queue family. vkQueueSubmit and
// vkQueuePresentKHR require external synchronization on the queue, and the
// graphics and present queues may be the same object.
type queueLocks struct {
	mu    sync.Mutex
	locks map[uint32]*sync.Mutex
}

func newQueueLocks(families ...uint32) *queueLocks {
	q := &queueLocks{locks: make(map[uint32]*sync.Mutex)}
	for _, f := range families {
		if _, ok := q.locks[f]; !ok {
			q.locks[f] = &sync.Mutex{}
		}
	}
	return q
}

func (q *queueLocks) lock(family uint32) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locks[family]
	if !ok {
		l = &sync.Mutex{}
		q.locks[family] = l
	}
	return l
}

// call runs fn while holding the lock of the given queue family.
func (q *queueLocks) call(family uint32, queue vk.Queue, fn func(vk.Queue) vk.Result) vk.Result {
	l := q.lock(family)
	l.Lock()
	defer l.Unlock()
	return fn(queue)
}
