// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package sched

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// Wait describes one suspended thread: which descriptor it wants
// readable or writable, and an optional deadline after which the wait
// returns with TimedOut set even if the descriptor never became ready.
type Wait struct {
	Tid      int64
	Fd       int
	Write    bool
	Deadline time.Time // zero means wait forever
}

// Wakeup is the result of a poll round for a single thread.
type Wakeup struct {
	Tid      int64
	TimedOut bool
}

// Waitq is the I/O-wait table: a mapping from thread ID to the wait it
// is blocked on, plus a deadline min-heap used to derive poll timeouts.
// It is not safe for concurrent use; only the scheduler touches it.
type Waitq struct {
	waits     map[int64]Wait
	deadlines []Wait
}

// NewWaitq creates an empty wait table.
func NewWaitq() *Waitq {
	return &Waitq{waits: make(map[int64]Wait)}
}

func deadlineLess(a, b Wait) bool {
	return a.Deadline.Before(b.Deadline)
}

// Add registers w. A thread may have at most one pending wait; adding
// again replaces the previous registration.
func (q *Waitq) Add(w Wait) {
	q.waits[w.Tid] = w
	if !w.Deadline.IsZero() {
		pushSlice(&q.deadlines, w, deadlineLess)
	}
}

// Remove drops the registration for tid, if any. Stale heap entries are
// skipped lazily when the deadline pops.
func (q *Waitq) Remove(tid int64) {
	delete(q.waits, tid)
}

// Empty reports whether no thread is currently blocked on I/O.
func (q *Waitq) Empty() bool { return len(q.waits) == 0 }

// Waiting lists the blocked thread IDs in ascending order, for
// diagnostics and the scheduler's root table.
func (q *Waitq) Waiting() []int64 {
	tids := maps.Keys(q.waits)
	slices.Sort(tids)
	return tids
}

// timeout computes the poll timeout in milliseconds: the time until the
// nearest live deadline, or -1 (wait forever) when no wait carries one.
func (q *Waitq) timeout(now time.Time) int {
	for len(q.deadlines) > 0 {
		head := q.deadlines[0]
		cur, ok := q.waits[head.Tid]
		if !ok || !cur.Deadline.Equal(head.Deadline) {
			popSlice(&q.deadlines, deadlineLess) // stale entry
			continue
		}
		ms := int(head.Deadline.Sub(now) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		return ms
	}
	return -1
}

// Poll performs one poll(2) round over every registered descriptor and
// returns the threads to wake: those whose descriptor is ready (or has
// an error/hangup condition pending) and those whose deadline expired.
// Woken threads are removed from the table.
func (q *Waitq) Poll(now time.Time) ([]Wakeup, error) {
	if q.Empty() {
		return nil, nil
	}
	fds := make([]unix.PollFd, 0, len(q.waits))
	tids := make([]int64, 0, len(q.waits))
	for tid, w := range q.waits {
		ev := int16(unix.POLLIN)
		if w.Write {
			ev = unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(w.Fd), Events: ev})
		tids = append(tids, tid)
	}
	n, err := unix.Poll(fds, q.timeout(now))
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	var woken []Wakeup
	if n > 0 {
		for i := range fds {
			if fds[i].Revents != 0 {
				woken = append(woken, Wakeup{Tid: tids[i]})
				delete(q.waits, tids[i])
			}
		}
	}
	// deadline expiries fire regardless of descriptor readiness
	after := time.Now()
	for tid, w := range q.waits {
		if !w.Deadline.IsZero() && !w.Deadline.After(after) {
			woken = append(woken, Wakeup{Tid: tid, TimedOut: true})
			delete(q.waits, tid)
		}
	}
	return woken, nil
}
