package broadcaster

import (
	"time"

	"github.com/goevery/realtime/internal/channel"
	"github.com/goevery/realtime/internal/frame"
)

// Message is one broadcast, encoded once and shared by every recipient.
type Message struct {
	Id         string       `json:"id"`
	CreateTime time.Time    `json:"createTime"`
	Channel    channel.Name `json:"channel"`
	Type       frame.Type   `json:"type"`
	Data       []byte       `json:"-"`
}
