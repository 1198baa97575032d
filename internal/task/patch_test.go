package task

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stellarlinkco/mirumi/internal/store"
)

func TestPatch_UnmarshalDistinguishesAbsentAndNull(t *testing.T) {
	var p Patch
	if err := json.Unmarshal([]byte(`{"title":"T","description":null,"status":"in-progress","isImportant":true}`), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if v, ok := p.Title.Get(); !ok || v != "T" {
		t.Errorf("Title = %q, %v", v, ok)
	}
	if !p.Description.IsNull() {
		t.Errorf("Description should be an explicit null")
	}
	if p.URL.Present() {
		t.Errorf("URL should be absent")
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if v, _ := p.Status.Get(); v != StatusInProgress {
		t.Errorf("Status normalized to %q", v)
	}
}

func TestPatch_Fields(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := Patch{
		Status:      Set(StatusPaused),
		TargetDate:  Null[string](),
		IsImportant: Set(true),
		ExternalRef: Set("msg-9"),
	}
	got := p.Fields(now)
	want := []store.Field{
		{Column: "updated_at", Value: "2026-01-02 03:04:05.000000"},
		{Column: "slack_message_id", Value: "msg-9"},
		{Column: "status", Value: "PAUSED"},
		{Column: "target_date", Value: nil},
		{Column: "is_important", Value: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Fields = %#v\nwant %#v", got, want)
	}

	empty := Patch{}
	if !empty.IsEmpty() {
		t.Errorf("IsEmpty() = false for zero patch")
	}
	if fields := empty.Fields(now); len(fields) != 1 || fields[0].Column != "updated_at" {
		t.Errorf("empty patch fields = %v, want only updated_at", fields)
	}
}

func TestPatch_ValidateRejects(t *testing.T) {
	cases := map[string]Patch{
		"null title":       {Title: Null[string]()},
		"blank title":      {Title: Set("  ")},
		"null priority":    {Priority: Null[Priority]()},
		"bad priority":     {Priority: Set(Priority("SOON"))},
		"bad status":       {Status: Set(Status("LATER"))},
		"negative total":   {TotalTimeSpent: Set[int64](-1)},
		"negative remain":  {RemainingTimeSeconds: Set[int64](-1)},
		"null importance":  {IsImportant: Null[bool]()},
		"negative expects": {ExpectedDuration: Set[int64](-3)},
	}
	for name, p := range cases {
		if err := p.Validate(); !errors.Is(err, store.ErrValidation) {
			t.Errorf("%s: Validate() = %v, want ErrValidation", name, err)
		}
	}
}

func TestField_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A Field[string] `json:"a"`
		B Field[int64]  `json:"b"`
	}{A: Set("x"), B: Null[int64]()})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":"x","b":null}` {
		t.Errorf("Marshal = %s", out)
	}
}
