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
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPollWakesOnReadable(t *testing.T) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	q := NewWaitq()
	q.Add(Wait{Tid: 7, Fd: p[0], Deadline: time.Now().Add(5 * time.Second)})
	if _, err := unix.Write(p[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	woken, err := q.Poll(time.Now())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(woken) != 1 || woken[0].Tid != 7 || woken[0].TimedOut {
		t.Fatalf("woken = %+v, want tid 7 ready", woken)
	}
	if !q.Empty() {
		t.Error("queue not drained after wakeup")
	}
}

func TestPollTimesOut(t *testing.T) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	q := NewWaitq()
	q.Add(Wait{Tid: 3, Fd: p[0], Deadline: time.Now().Add(10 * time.Millisecond)})
	start := time.Now()
	var woken []Wakeup
	for len(woken) == 0 && time.Since(start) < time.Second {
		var err error
		woken, err = q.Poll(time.Now())
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if len(woken) != 1 || !woken[0].TimedOut {
		t.Fatalf("woken = %+v, want timeout for tid 3", woken)
	}
}

func TestTimerHeapOrdering(t *testing.T) {
	now := time.Now()
	var h []Wait
	for _, ms := range []int{50, 10, 30, 20, 40} {
		pushSlice(&h, Wait{Tid: int64(ms), Deadline: now.Add(time.Duration(ms) * time.Millisecond)}, deadlineLess)
	}
	prev := time.Time{}
	for len(h) > 0 {
		w := popSlice(&h, deadlineLess)
		if !prev.IsZero() && w.Deadline.Before(prev) {
			t.Fatalf("heap order violated: %v before %v", w.Deadline, prev)
		}
		prev = w.Deadline
	}
}

func TestWaitingList(t *testing.T) {
	q := NewWaitq()
	q.Add(Wait{Tid: 9, Fd: -1})
	q.Add(Wait{Tid: 2, Fd: -1})
	tids := q.Waiting()
	if len(tids) != 2 || tids[0] != 2 || tids[1] != 9 {
		t.Fatalf("Waiting() = %v, want [2 9]", tids)
	}
	q.Remove(9)
	if tids := q.Waiting(); len(tids) != 1 || tids[0] != 2 {
		t.Fatalf("after Remove: %v", tids)
	}
}
