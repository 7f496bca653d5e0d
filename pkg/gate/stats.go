package gate

import (
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// admissionStats keeps a rolling average of how long tickets waited
// before admission. Not locked on its own. Callers already hold the
// owning gate's lock.
type admissionStats struct {
	avgWaitDuration time.Duration

	// A fixed size sliding window for calculating average wait time.
	waitDurationQueue *linkedlistqueue.Queue

	windowSize int
}

func newAdmissionStats(windowSize int) *admissionStats {
	return &admissionStats{
		waitDurationQueue: linkedlistqueue.New(),
		windowSize:        windowSize,
	}
}

func (s *admissionStats) record(waitDuration time.Duration) {
	if s.waitDurationQueue.Size() >= s.windowSize {
		s.waitDurationQueue.Dequeue()
	}
	s.waitDurationQueue.Enqueue(waitDuration)

	it := s.waitDurationQueue.Iterator()
	var totalWaitDuration time.Duration
	for it.Next() {
		totalWaitDuration += it.Value().(time.Duration)
	}
	s.avgWaitDuration = totalWaitDuration / time.Duration(s.waitDurationQueue.Size())
}

func (s *admissionStats) avgWait() time.Duration {
	return s.avgWaitDuration
}
