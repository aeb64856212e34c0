package relay

import (
	"strings"

	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
)

const ChatUsage = "Usage: .chat <message>"

// Sender is the part of worldchat.Engine the adapters need.
type Sender interface {
	Send(sender worldchat.Participant, raw string) worldchat.Outcome
	Settings() worldchat.Settings
}

// ChatCommand implements ".chat <message>".
type ChatCommand struct {
	engine Sender
	reply  Replier
}

func NewChatCommand(engine Sender, reply Replier) *ChatCommand {
	if reply == nil {
		reply = NotifyReplier
	}
	return &ChatCommand{engine: engine, reply: reply}
}

func (c *ChatCommand) Command() string { return "chat" }

func (c *ChatCommand) Handle(invoker worldchat.Participant, tail string) {
	if !c.engine.Settings().Enabled || invoker == nil {
		return
	}
	msg := strings.TrimSpace(tail)
	if msg == "" {
		c.reply.Reply(invoker, ChatUsage)
		return
	}
	c.engine.Send(invoker, msg)
}

// ChannelRelay relays messages typed into the configured channel.
type ChannelRelay struct {
	engine Sender
	log    logx.Logger
}

func NewChannelRelay(engine Sender, log logx.Logger) *ChannelRelay {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ChannelRelay{engine: engine, log: log}
}

func (r *ChannelRelay) OnChannelMessage(sender worldchat.Participant, msg ChannelMessage) bool {
	s := r.engine.Settings()
	if !s.Enabled || sender == nil {
		return false
	}
	if msg.Lang == LangAddon {
		return false
	}
	if !s.MatchesChannel(msg.Channel) {
		return false
	}
	out := r.engine.Send(sender, msg.Text)
	if !out.Consumed {
		r.log.Debug("channel message not relayed", logx.String("sender", sender.ID()), logx.Err(out.Reason))
	}
	return out.Consumed
}

// Armer is the part of announce.Scheduler the login hook needs.
type Armer interface {
	Arm(id string)
	Cancel(id string)
}

// LoginAnnouncer arms the login reminder and cancels it on logout.
type LoginAnnouncer struct {
	settings interface{ Load() worldchat.Settings }
	sched    Armer
}

func NewLoginAnnouncer(settings interface{ Load() worldchat.Settings }, sched Armer) *LoginAnnouncer {
	return &LoginAnnouncer{settings: settings, sched: sched}
}

func (l *LoginAnnouncer) OnLogin(p worldchat.Participant) {
	if p == nil {
		return
	}
	s := l.settings.Load()
	if !s.Enabled || !s.AnnounceOnJoin {
		return
	}
	l.sched.Arm(p.ID())
}

func (l *LoginAnnouncer) OnLogout(p worldchat.Participant) {
	if p == nil {
		return
	}
	l.sched.Cancel(p.ID())
}
