package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrNoSender reports that no outbound track of the requested kind exists
// on the peer connection.
var ErrNoSender = errors.New("rtc: no sender for track kind")

// candidateQueue holds remote ICE candidates that arrived before the remote
// description. Candidates are flushed in arrival order, none dropped.
type candidateQueue struct {
	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{}
}

// offer queues cand when the remote description is still missing and
// reports whether it did.
func (q *candidateQueue) offer(remoteMissing bool, cand webrtc.ICECandidateInit) bool {
	if !remoteMissing {
		return false
	}
	q.mu.Lock()
	q.pending = append(q.pending, cand)
	q.mu.Unlock()
	return true
}

// drain returns the queued candidates in order and empties the queue.
func (q *candidateQueue) drain() []webrtc.ICECandidateInit {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}

func (q *candidateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
