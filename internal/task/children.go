package task

import (
	"context"
	"strings"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// normalizeTag trims whitespace and a leading '#'.
func normalizeTag(raw string) (string, bool) {
	tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	return tag, tag != ""
}

func tagFields(id, taskID, tag, stamp string) []store.Field {
	return []store.Field{
		{Column: "id", Value: id},
		{Column: "task_id", Value: taskID},
		{Column: "tag", Value: tag},
		{Column: "created_at", Value: stamp},
	}
}

// AddTag attaches tag to the task. Adding a tag the task already has is a no-op.
func (e *Engine) AddTag(ctx context.Context, taskID, raw string) (string, error) {
	tag, ok := normalizeTag(raw)
	if !ok {
		return "", store.Invalidf("tag is empty")
	}
	if err := e.exists(ctx, taskID); err != nil {
		return "", err
	}
	stamp := store.FormatTime(e.now())
	if err := e.store.InsertOrIgnore(ctx, store.TableTag, tagFields(e.newID(), taskID, tag, stamp)); err != nil {
		return "", err
	}
	return tag, nil
}

func (e *Engine) RemoveTag(ctx context.Context, taskID, raw string) error {
	tag, ok := normalizeTag(raw)
	if !ok {
		return store.Invalidf("tag is empty")
	}
	if err := e.exists(ctx, taskID); err != nil {
		return err
	}
	return e.store.DeleteWhere(ctx, store.TableTag, []store.Field{
		{Column: "task_id", Value: taskID},
		{Column: "tag", Value: tag},
	})
}

func (e *Engine) AddMemo(ctx context.Context, taskID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", store.Invalidf("memo content is empty")
	}
	if err := e.exists(ctx, taskID); err != nil {
		return "", err
	}
	id := e.newID()
	err := e.store.Insert(ctx, store.TableMemo, []store.Field{
		{Column: "id", Value: id},
		{Column: "task_id", Value: taskID},
		{Column: "content", Value: content},
		{Column: "created_at", Value: store.FormatTime(e.now())},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (e *Engine) AddNote(ctx context.Context, taskID, title, content string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", store.Invalidf("note title is empty")
	}
	if err := e.exists(ctx, taskID); err != nil {
		return "", err
	}
	id := e.newID()
	stamp := store.FormatTime(e.now())
	err := e.store.Insert(ctx, store.TableNote, []store.Field{
		{Column: "id", Value: id},
		{Column: "task_id", Value: taskID},
		{Column: "title", Value: title},
		{Column: "content", Value: content},
		{Column: "created_at", Value: stamp},
		{Column: "updated_at", Value: stamp},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateNote rewrites the present fields and always bumps the note's updated_at.
func (e *Engine) UpdateNote(ctx context.Context, noteID string, title, content Field[string]) error {
	if title.IsNull() || content.IsNull() {
		return store.Invalidf("note title and content cannot be null")
	}
	fields := []store.Field{{Column: "updated_at", Value: store.FormatTime(e.now())}}
	if v, ok := title.Get(); ok {
		if strings.TrimSpace(v) == "" {
			return store.Invalidf("note title is empty")
		}
		fields = append(fields, store.Field{Column: "title", Value: v})
	}
	if v, ok := content.Get(); ok {
		fields = append(fields, store.Field{Column: "content", Value: v})
	}
	return e.store.Patch(ctx, store.TableNote, noteID, fields)
}
