package router

import (
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// entry is one queued command with its dispatch eligibility time. ReadyAt
// moves forward on each retry; within a class, submission order is kept.
type entry struct {
	cmd     *model.Command
	readyAt time.Time
}

// pendingQueue orders entries by priority class, FIFO within a class.
// Not safe for concurrent use; the router serializes access.
type pendingQueue struct {
	classes [enum.PriorityCount][]*entry
	size    int
}

func classIndex(p enum.Priority) int {
	return int(p) - 1
}

func (q *pendingQueue) push(e *entry) {
	idx := classIndex(e.cmd.Priority)
	q.classes[idx] = append(q.classes[idx], e)
	q.size++
}

// popReady removes and returns the highest-priority entry that is ready at
// now and whose class passes allowed. Returns nil when nothing is eligible.
func (q *pendingQueue) popReady(now time.Time, allowed func(enum.Priority) bool) *entry {
	for idx := enum.PriorityCount - 1; idx >= 0; idx-- {
		class := q.classes[idx]
		if len(class) == 0 {
			continue
		}
		if !allowed(class[0].cmd.Priority) {
			continue
		}
		for i, e := range class {
			if e.readyAt.After(now) {
				continue
			}
			q.classes[idx] = append(class[:i], class[i+1:]...)
			q.size--
			return e
		}
	}
	return nil
}

// nextReadyAt reports the earliest eligibility time among allowed classes.
// The zero time means the queue holds nothing dispatchable.
func (q *pendingQueue) nextReadyAt(allowed func(enum.Priority) bool) time.Time {
	var next time.Time
	for idx := range q.classes {
		for _, e := range q.classes[idx] {
			if !allowed(e.cmd.Priority) {
				continue
			}
			if next.IsZero() || e.readyAt.Before(next) {
				next = e.readyAt
			}
		}
	}
	return next
}

// remove deletes the entry holding id, reporting whether it was present.
func (q *pendingQueue) remove(id string) bool {
	for idx := range q.classes {
		for i, e := range q.classes[idx] {
			if e.cmd.ID == id {
				q.classes[idx] = append(q.classes[idx][:i], q.classes[idx][i+1:]...)
				q.size--
				return true
			}
		}
	}
	return false
}

// expire removes every entry whose command has waited longer than maxAge,
// returning the expired commands.
func (q *pendingQueue) expire(now time.Time, maxAge time.Duration) []*model.Command {
	if maxAge <= 0 {
		return nil
	}
	var expired []*model.Command
	for idx := range q.classes {
		kept := q.classes[idx][:0]
		for _, e := range q.classes[idx] {
			if now.Sub(e.cmd.SubmittedAt) > maxAge {
				expired = append(expired, e.cmd)
				q.size--
				continue
			}
			kept = append(kept, e)
		}
		q.classes[idx] = kept
	}
	return expired
}

func (q *pendingQueue) len() int {
	return q.size
}
