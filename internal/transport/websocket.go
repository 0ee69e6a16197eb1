package transport

import (
	"context"

	"github.com/coder/websocket"

	"github.com/coachpo/tradefeed/errs"
)

// WebsocketDialer dials channels over websocket.
type WebsocketDialer struct{}

// Dial establishes a websocket connection to the given URL.
func (WebsocketDialer) Dial(ctx context.Context, url string) (Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, errs.New("transport", errs.CodeNetwork,
			errs.WithMessage("dial "+url), errs.WithCause(err))
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsChannel) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutdown")
}
