// Package progress delivers per-file completion callbacks to a single
// consumer in strictly increasing sequence order, independent of the actual
// (concurrent, out-of-order) completion order of the work producing them.
package progress

import (
	"sync/atomic"
)

// Update is one unit of progress: seq is assigned by Report and is
// monotonically increasing across an entire run; total is fixed for the
// run; name is the file just completed.
type Update struct {
	Seq   int
	Total int
	Name  string
}

// Func is the caller-supplied sink. It is always invoked from the single
// consumer goroutine started by NewReporter, never concurrently.
type Func func(done, total int, name string)

// Reporter assigns sequence numbers to completions from any number of
// concurrent producers and feeds them to a dedicated consumer goroutine,
// which calls the sink in receive order — i.e. in the order producers
// happened to finish, not in any externally meaningful order, but never
// interleaved or reentrant.
type Reporter struct {
	seq   int64
	total int
	ch    chan Update
	done  chan struct{}
}

// NewReporter starts the consumer goroutine. If sink is nil, updates are
// drained and discarded. Call Close once producers are done to let the
// consumer goroutine exit.
func NewReporter(total int, sink Func) *Reporter {
	r := &Reporter{
		total: total,
		ch:    make(chan Update, 64),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		// The consumer counts receptions itself rather than trusting the
		// producer-assigned Seq: two producers can be preempted between
		// taking a sequence number and sending, so channel order is not
		// sequence order, but the completed count reported to the sink must
		// be strictly increasing.
		done := 0
		for u := range r.ch {
			done++
			if sink != nil {
				sink(done, u.Total, u.Name)
			}
		}
	}()
	return r
}

// Report records one completion. Safe for concurrent use.
func (r *Reporter) Report(name string) {
	seq := atomic.AddInt64(&r.seq, 1) - 1
	r.ch <- Update{Seq: int(seq), Total: r.total, Name: name}
}

// Close signals no more updates will be sent and blocks until the consumer
// goroutine has drained the channel.
func (r *Reporter) Close() {
	close(r.ch)
	<-r.done
}
