package domain

import "time"

// TaskKind is the closed set of pipeline stages a worker can run.
type TaskKind string

const (
	TaskParseContent     TaskKind = "parse_content"
	TaskQuickClassify    TaskKind = "quick_classify"
	TaskClassify         TaskKind = "classify"
	TaskGenerateEmbed    TaskKind = "generate_embeddings"
	TaskMatchCollections TaskKind = "match_collections"
)

// QueueClass separates tasks by urgency. Each class is a distinct
// queue pulled by the worker pool.
type QueueClass string

const (
	QueueQuick    QueueClass = "quick"
	QueueClassify QueueClass = "classify"
	QueueHeavy    QueueClass = "heavy"
	QueueIngest   QueueClass = "ingest"
)

func QueueForKind(kind TaskKind) QueueClass {
	switch kind {
	case TaskParseContent, TaskQuickClassify, TaskMatchCollections:
		return QueueQuick
	case TaskClassify:
		return QueueClassify
	default:
		return QueueHeavy
	}
}

// Task is one at-least-once pipeline job. NotBefore delays delivery;
// Attempt counts dispatches including precondition re-enqueues.
type Task struct {
	ID        string   `json:"id"`
	Kind      TaskKind `json:"kind"`
	ContentID string   `json:"content_id"`
	Priority  int      `json:"priority"`
	Attempt   int      `json:"attempt"`
	// Display marks a quick_classify task as allowed to open the
	// visibility gate with its provisional label.
	Display    bool       `json:"display,omitempty"`
	NotBefore  time.Time  `json:"not_before"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	Queue      QueueClass `json:"queue"`
}

func NewTask(id string, kind TaskKind, contentID string, priority int, delay time.Duration) Task {
	now := time.Now().UTC()
	return Task{
		ID:         id,
		Kind:       kind,
		ContentID:  contentID,
		Priority:   priority,
		NotBefore:  now.Add(delay),
		EnqueuedAt: now,
		Queue:      QueueForKind(kind),
	}
}
