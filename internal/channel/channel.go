package channel

import (
	"context"
	"strings"
)

// Channel is a surface started and stopped with the daemon.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Command types accepted from channels.
const (
	CmdTimerStart   = "timer.start"
	CmdTimerUpdate  = "timer.update"
	CmdTimerStop    = "timer.stop"
	CmdTimerSync    = "timer.sync"
	CmdTimerQuery   = "timer.query"
	CmdTaskStart    = "task.start"
	CmdTaskPause    = "task.pause"
	CmdTaskComplete = "task.complete"
)

// Command is a request from a connected client.
type Command struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Remaining  int    `json:"remainingSeconds,omitempty"`
	Label      string `json:"label,omitempty"`
	ResetLabel bool   `json:"resetLabel,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
}

// Reply answers a Command with the timer state after it ran.
type Reply struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Remaining int    `json:"remainingSeconds"`
	Label     string `json:"label"`
	Running   bool   `json:"running"`
	Error     string `json:"error,omitempty"`
}

const (
	replyState = "state"
	replyError = "error"
	msgTitle   = "title"
)

// Controller executes commands received by channels.
type Controller interface {
	HandleCommand(ctx context.Context, cmd Command) (Reply, error)
}

// BaseChannel carries the name and sender allow-list shared by channels.
type BaseChannel struct {
	name      string
	allowFrom map[string]bool
}

func NewBaseChannel(name string, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = true
		}
	}
	return BaseChannel{name: name, allowFrom: allowed}
}

func (b BaseChannel) Name() string {
	return b.name
}

// IsAllowed accepts everyone when the allow-list is empty.
func (b BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	return b.allowFrom[senderID]
}
