package task

import (
	"encoding/json"
	"strings"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// DefaultExpectedMinutes is the expected duration given to new tasks.
const DefaultExpectedMinutes = 5

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority accepts any letter case.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", store.Invalidf("unknown priority %q", s)
}

type Status string

const (
	StatusInbox      Status = "INBOX"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusArchived   Status = "ARCHIVED"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusInbox, StatusInProgress, StatusPaused, StatusCompleted, StatusArchived}

// ParseStatus accepts any letter case and either '-' or '_' as separator.
func ParseStatus(s string) (Status, error) {
	norm := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
	for _, st := range Statuses {
		if string(st) == norm {
			return st, nil
		}
	}
	return "", store.Invalidf("unknown status %q", s)
}

// ActionKind is the closed vocabulary of audit events.
type ActionKind string

const (
	ActionCreated           ActionKind = "CREATED"
	ActionStarted           ActionKind = "STARTED"
	ActionPaused            ActionKind = "PAUSED"
	ActionCompleted         ActionKind = "COMPLETED"
	ActionArchived          ActionKind = "ARCHIVED"
	ActionRestored          ActionKind = "RESTORED"
	ActionStatusChanged     ActionKind = "STATUS_CHANGED"
	ActionTargetDateChanged ActionKind = "TARGET_DATE_CHANGED"
)

// ActionForStatus maps a status transition target to its audit kind.
// Targets outside the known set fall back to ActionStatusChanged.
func ActionForStatus(to Status) ActionKind {
	switch to {
	case StatusInProgress:
		return ActionStarted
	case StatusPaused:
		return ActionPaused
	case StatusCompleted:
		return ActionCompleted
	case StatusArchived:
		return ActionArchived
	case StatusInbox:
		return ActionRestored
	default:
		return ActionStatusChanged
	}
}

// EndType tags how a run session finished.
type EndType string

const (
	EndRunning     EndType = "running"
	EndCompleted   EndType = "completed"
	EndPaused      EndType = "paused"
	EndTimeout     EndType = "timeout"
	EndInterrupted EndType = "interrupted"
)

// ParseEndType maps unrecognised values to EndInterrupted.
func ParseEndType(s string) EndType {
	switch e := EndType(strings.ToLower(strings.TrimSpace(s))); e {
	case EndRunning, EndCompleted, EndPaused, EndTimeout, EndInterrupted:
		return e
	default:
		return EndInterrupted
	}
}

type Task struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	Description          *string         `json:"description"`
	URL                  *string         `json:"url"`
	ExternalRef          *string         `json:"externalRef"`
	Priority             Priority        `json:"priority"`
	Status               Status          `json:"status"`
	TotalTimeSpent       int64           `json:"totalTimeSpent"`
	ExpectedDuration     *int64          `json:"expectedDuration"`
	RemainingTimeSeconds *int64          `json:"remainingTimeSeconds"`
	TargetDate           *string         `json:"targetDate"`
	IsImportant          bool            `json:"isImportant"`
	CreatedAt            string          `json:"createdAt"`
	UpdatedAt            string          `json:"updatedAt"`
	CompletedAt          *string         `json:"completedAt"`
	LastPausedAt         *string         `json:"lastPausedAt"`
	LastRunAt            *string         `json:"lastRunAt"`
	Tags                 []string        `json:"tags"`
	Memos                []Memo          `json:"memos"`
	Notes                []Note          `json:"notes"`
	RunHistory           []RunHistory    `json:"runHistory"`
	TimeExtensions       []TimeExtension `json:"timeExtensions"`
	ActionHistory        []ActionHistory `json:"actionHistory"`
}

// ExpectedSeconds is the planned session length, falling back to the default.
func (t *Task) ExpectedSeconds() int {
	if t.ExpectedDuration != nil && *t.ExpectedDuration > 0 {
		return int(*t.ExpectedDuration) * 60
	}
	return DefaultExpectedMinutes * 60
}

type Memo struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type Note struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// RunHistory is one timed session. EndedAt is nil while the session is open.
type RunHistory struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"taskId"`
	StartedAt string  `json:"startedAt"`
	EndedAt   *string `json:"endedAt"`
	Duration  int64   `json:"duration"`
	EndType   EndType `json:"endType"`
}

func (r RunHistory) Open() bool {
	return r.EndedAt == nil
}

type TimeExtension struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"taskId"`
	AddedMinutes     int64   `json:"addedMinutes"`
	PreviousDuration int64   `json:"previousDuration"`
	NewDuration      int64   `json:"newDuration"`
	Reason           *string `json:"reason"`
	CreatedAt        string  `json:"createdAt"`
}

type ActionHistory struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"taskId"`
	ActionType     ActionKind      `json:"actionType"`
	PreviousStatus *string         `json:"previousStatus"`
	NewStatus      *string         `json:"newStatus"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

// DecodeMetadata unmarshals the payload into v. Entries without metadata leave v untouched.
func (a ActionHistory) DecodeMetadata(v any) error {
	if len(a.Metadata) == 0 {
		return nil
	}
	return json.Unmarshal(a.Metadata, v)
}

// TargetDateChange is the metadata of a TARGET_DATE_CHANGED entry.
type TargetDateChange struct {
	Previous *string `json:"previousTargetDate,omitempty"`
	New      *string `json:"newTargetDate"`
}
