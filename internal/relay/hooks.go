// Package relay connects host events to the world chat core.
//
// The host (Telegram bot, WebSocket server, ...) only talks to a Hub. Each
// concern is a small listener contract so it can be tested with fakes.
package relay

import (
	"time"

	"worldchat/internal/worldchat"
)

// ConfigListener receives every loaded or reloaded settings snapshot.
type ConfigListener interface {
	OnConfigLoad(s worldchat.Settings)
}

// CommandHandler handles one named command, e.g. "chat" for ".chat <message>".
type CommandHandler interface {
	Command() string
	Handle(invoker worldchat.Participant, tail string)
}

// Language tags a channel message. LangAddon is addon traffic and is never
// relayed.
type Language string

const (
	LangCommon Language = "common"
	LangAddon  Language = "addon"
)

// ChannelMessage is a chat line posted into a named channel.
type ChannelMessage struct {
	Channel string
	Lang    Language
	Text    string
}

// ChannelObserver sees every channel message. Returning true asks the host
// not to deliver the original message through the channel itself.
type ChannelObserver interface {
	OnChannelMessage(sender worldchat.Participant, msg ChannelMessage) (suppress bool)
}

// SessionLifecycleListener is told when a participant logs in or out.
type SessionLifecycleListener interface {
	OnLogin(p worldchat.Participant)
	OnLogout(p worldchat.Participant)
}

// Ticker is driven by the periodic update loop.
type Ticker interface {
	OnTick(elapsed time.Duration)
}

// Replier sends a direct reply (usage hints) to one participant.
type Replier interface {
	Reply(p worldchat.Participant, text string)
}

// ReplyFunc adapts a function to Replier.
type ReplyFunc func(p worldchat.Participant, text string)

func (f ReplyFunc) Reply(p worldchat.Participant, text string) { f(p, text) }

// NotifyReplier replies through the participant's own Notify.
var NotifyReplier Replier = ReplyFunc(func(p worldchat.Participant, text string) {
	if p != nil {
		_ = p.Notify(text)
	}
})
