package task

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// Field is an optional patch value with three states: absent (zero value),
// set to a value, or explicitly cleared to null.
type Field[T any] struct {
	value T
	set   bool
	null  bool
}

func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// Present reports whether the patch mentions the field at all.
func (f Field[T]) Present() bool { return f.set }

func (f Field[T]) IsNull() bool { return f.set && f.null }

// Get returns the value and whether it is a non-null assignment.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set && !f.null
}

// Ptr returns nil for an absent or null field.
func (f Field[T]) Ptr() *T {
	if !f.set || f.null {
		return nil
	}
	v := f.value
	return &v
}

func (f Field[T]) column() any {
	if f.null {
		return nil
	}
	return f.value
}

// UnmarshalJSON only runs when the key is present, which is what separates
// absent from null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.value, f.null = zero, true
		return nil
	}
	f.null = false
	return json.Unmarshal(data, &f.value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// Patch is a sparse update of the mutable task columns.
type Patch struct {
	Title                Field[string]   `json:"title"`
	Description          Field[string]   `json:"description"`
	URL                  Field[string]   `json:"url"`
	ExternalRef          Field[string]   `json:"externalRef"`
	Priority             Field[Priority] `json:"priority"`
	Status               Field[Status]   `json:"status"`
	TotalTimeSpent       Field[int64]    `json:"totalTimeSpent"`
	ExpectedDuration     Field[int64]    `json:"expectedDuration"`
	RemainingTimeSeconds Field[int64]    `json:"remainingTimeSeconds"`
	TargetDate           Field[string]   `json:"targetDate"`
	IsImportant          Field[bool]     `json:"isImportant"`
	CompletedAt          Field[string]   `json:"completedAt"`
	LastPausedAt         Field[string]   `json:"lastPausedAt"`
	LastRunAt            Field[string]   `json:"lastRunAt"`
}

// IsEmpty reports whether no field is present. An empty patch still stamps updated_at.
func (p *Patch) IsEmpty() bool {
	return len(p.assignments()) == 0
}

// Validate rejects nulls on required columns and out-of-range values, and
// normalizes enum spelling.
func (p *Patch) Validate() error {
	if p.Title.IsNull() {
		return store.Invalidf("title cannot be null")
	}
	if v, ok := p.Title.Get(); ok && strings.TrimSpace(v) == "" {
		return store.Invalidf("title cannot be empty")
	}
	if p.Priority.IsNull() {
		return store.Invalidf("priority cannot be null")
	}
	if v, ok := p.Priority.Get(); ok {
		pr, err := ParsePriority(string(v))
		if err != nil {
			return err
		}
		p.Priority.value = pr
	}
	if p.Status.IsNull() {
		return store.Invalidf("status cannot be null")
	}
	if v, ok := p.Status.Get(); ok {
		st, err := ParseStatus(string(v))
		if err != nil {
			return err
		}
		p.Status.value = st
	}
	if p.TotalTimeSpent.IsNull() {
		return store.Invalidf("totalTimeSpent cannot be null")
	}
	if v, ok := p.TotalTimeSpent.Get(); ok && v < 0 {
		return store.Invalidf("totalTimeSpent must be >= 0, got %d", v)
	}
	if v, ok := p.RemainingTimeSeconds.Get(); ok && v < 0 {
		return store.Invalidf("remainingTimeSeconds must be >= 0, got %d", v)
	}
	if v, ok := p.ExpectedDuration.Get(); ok && v < 0 {
		return store.Invalidf("expectedDuration must be >= 0, got %d", v)
	}
	if p.IsImportant.IsNull() {
		return store.Invalidf("isImportant cannot be null")
	}
	return nil
}

type assignment struct {
	column  string
	present bool
	value   func() any
}

func (p *Patch) assignments() []store.Field {
	all := []assignment{
		{"title", p.Title.Present(), p.Title.column},
		{"description", p.Description.Present(), p.Description.column},
		{"url", p.URL.Present(), p.URL.column},
		{"slack_message_id", p.ExternalRef.Present(), p.ExternalRef.column},
		{"priority", p.Priority.Present(), func() any { return string(p.Priority.value) }},
		{"status", p.Status.Present(), func() any { return string(p.Status.value) }},
		{"total_time_spent", p.TotalTimeSpent.Present(), p.TotalTimeSpent.column},
		{"expected_duration", p.ExpectedDuration.Present(), p.ExpectedDuration.column},
		{"remaining_time_seconds", p.RemainingTimeSeconds.Present(), p.RemainingTimeSeconds.column},
		{"target_date", p.TargetDate.Present(), p.TargetDate.column},
		{"is_important", p.IsImportant.Present(), func() any { return boolToInt(p.IsImportant.value) }},
		{"completed_at", p.CompletedAt.Present(), p.CompletedAt.column},
		{"last_paused_at", p.LastPausedAt.Present(), p.LastPausedAt.column},
		{"last_run_at", p.LastRunAt.Present(), p.LastRunAt.column},
	}
	var out []store.Field
	for _, a := range all {
		if a.present {
			out = append(out, store.Field{Column: a.column, Value: a.value()})
		}
	}
	return out
}

// Fields returns the assignment list for the present fields, led by updated_at.
func (p *Patch) Fields(now time.Time) []store.Field {
	return append([]store.Field{{Column: "updated_at", Value: store.FormatTime(now)}}, p.assignments()...)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
