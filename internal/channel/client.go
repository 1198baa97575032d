package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Client talks to a running WebUIChannel.
type Client struct {
	conn   *websocket.Conn
	nextID atomic.Int64
}

// Dial connects to addr (host:port) on the /ws endpoint.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Do sends cmd and waits for its reply, skipping title broadcasts.
func (c *Client) Do(ctx context.Context, cmd Command) (Reply, error) {
	cmd.ID = strconv.FormatInt(c.nextID.Add(1), 10)
	data, err := json.Marshal(cmd)
	if err != nil {
		return Reply{}, err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return Reply{}, fmt.Errorf("send %s: %w", cmd.Type, err)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("read reply: %w", err)
		}
		var reply Reply
		if err := json.Unmarshal(data, &reply); err != nil {
			continue
		}
		if reply.ID != cmd.ID {
			continue
		}
		if reply.Type == replyError {
			return reply, errors.New(reply.Error)
		}
		return reply, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
