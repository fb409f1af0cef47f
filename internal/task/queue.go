// Package task holds the queue of commands waiting to be typed into a session.
package task

// Queue is a last-in-first-out collection of command strings.
//
// Queue is not safe for concurrent use. The monitor loop serializes access:
// processors only touch the queue from inside a pipeline tick.
type Queue struct {
	items []string
}

// NewQueue returns a queue whose Pop order matches the argument order:
// tasks are pushed in reverse so tasks[0] is dispatched first.
func NewQueue(tasks ...string) *Queue {
	q := &Queue{items: make([]string, 0, len(tasks))}
	for i := len(tasks) - 1; i >= 0; i-- {
		q.Push(tasks[i])
	}
	return q
}

// Push adds a task on top of the queue.
func (q *Queue) Push(task string) {
	q.items = append(q.items, task)
}

// Pop removes and returns the most recently pushed task.
func (q *Queue) Pop() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	last := len(q.items) - 1
	t := q.items[last]
	q.items[last] = ""
	q.items = q.items[:last]
	return t, true
}

// Peek returns the task Pop would return without removing it.
func (q *Queue) Peek() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	return q.items[len(q.items)-1], true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Empty reports whether no tasks are pending.
func (q *Queue) Empty() bool {
	return len(q.items) == 0
}

// Items returns the pending tasks in dispatch order (next task first).
func (q *Queue) Items() []string {
	out := make([]string, 0, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out = append(out, q.items[i])
	}
	return out
}
