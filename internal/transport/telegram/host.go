// Package telegram hosts world chat participants on a Telegram bot.
//
// A user joins with /join <alliance|horde> [class] [name] in a private chat
// with the bot. Afterwards /chat <message> broadcasts, and messages typed in a
// group whose title matches the world channel label are relayed and deleted.
// /leave quits; /leave forget also drops the profile /start would restore.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"worldchat/internal/outbox"
	"worldchat/internal/presence"
	"worldchat/internal/relay"
	rtsup "worldchat/internal/runtime/supervisor"
	"worldchat/internal/storage"
	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
	"worldchat/pkg/tgui"
)

const (
	JoinUsage    = "Usage: /join <alliance|horde> [class] [name]"
	NotJoinedMsg = "You are not in world chat. " + JoinUsage
	LeftMsg      = "You left world chat."
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Messenger is the part of *tele.Bot the host talks to.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Incoming is the transport-neutral view of one text message.
type Incoming struct {
	MessageID int
	ChatID    int64
	ChatTitle string
	Private   bool
	UserID    int64
	Username  string
	FirstName string
	Text      string
}

type Host struct {
	log   logx.Logger
	hub   *relay.Hub
	dir   *presence.Registry
	out   *outbox.Queue
	store storage.Store // may be nil

	bot *tele.Bot // nil in tests
	msg Messenger

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(cfg Config, hub *relay.Hub, dir *presence.Registry, out *outbox.Queue, store storage.Store, log logx.Logger) (*Host, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	h := newHost(hub, dir, out, store, b, log)
	h.bot = b
	b.Handle(tele.OnText, func(c tele.Context) error {
		if in, ok := incomingFrom(c.Message()); ok {
			h.HandleText(context.Background(), in)
		}
		return nil
	})
	return h, nil
}

func newHost(hub *relay.Hub, dir *presence.Registry, out *outbox.Queue, store storage.Store, m Messenger, log logx.Logger) *Host {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Host{log: log, hub: hub, dir: dir, out: out, store: store, msg: m}
}

func incomingFrom(m *tele.Message) (Incoming, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return Incoming{}, false
	}
	return Incoming{
		MessageID: m.ID,
		ChatID:    m.Chat.ID,
		ChatTitle: m.Chat.Title,
		Private:   m.Chat.Type == tele.ChatPrivate,
		UserID:    m.Sender.ID,
		Username:  m.Sender.Username,
		FirstName: m.Sender.FirstName,
		Text:      m.Text,
	}, true
}

// Start runs the long poller until Stop.
func (h *Host) Start(ctx context.Context) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.sup != nil || h.bot == nil {
		return nil
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(h.log.With(logx.String("comp", "telegram"))),
		rtsup.WithCancelOnError(false),
	)
	h.sup = sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		h.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		h.log.Info("polling started")
		h.bot.Start()
		h.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited")
		}
		return nil
	}, 500*time.Millisecond, 10*time.Second)
	return nil
}

func (h *Host) Stop(ctx context.Context) {
	h.runMu.Lock()
	sup := h.sup
	h.sup = nil
	h.runMu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("telegram stop incomplete", logx.Err(err))
	}
}

func sessionID(userID int64) string { return "tg:" + strconv.FormatInt(userID, 10) }

// HandleText routes one message: host commands, world chat commands, or a
// channel line in a group named after the world channel. In groups only
// known command names are taken as commands; any other line is channel text.
func (h *Host) HandleText(ctx context.Context, in Incoming) {
	id := sessionID(in.UserID)
	if name, tail, ok := relay.ParseCommand(in.Text); ok && (in.Private || h.isCommand(name)) {
		switch name {
		case "join":
			h.join(ctx, in, tail)
			return
		case "start":
			h.start(ctx, in)
			return
		case "leave":
			h.leave(ctx, in, tail)
			return
		}
		sess, joined := h.dir.Session(id)
		if !joined {
			if in.Private {
				h.reply(in.UserID, tgui.Esc(NotJoinedMsg))
			}
			return
		}
		if !h.hub.Dispatch(name, sess, tail) && in.Private {
			h.reply(in.UserID, tgui.JoinH("", tgui.Esc("Unknown command "), tgui.Code("/"+name), tgui.Esc(".")))
		}
		return
	}

	if in.Private {
		return
	}
	sess, joined := h.dir.Session(id)
	if !joined {
		return
	}
	msg := relay.ChannelMessage{Channel: in.ChatTitle, Lang: relay.LangCommon, Text: in.Text}
	if h.hub.ObserveChannel(sess, msg) {
		ref := &tele.Message{ID: in.MessageID, Chat: &tele.Chat{ID: in.ChatID}}
		if err := h.msg.Delete(ref); err != nil {
			h.log.Debug("delete relayed message failed", logx.Int64("chat_id", in.ChatID), logx.Err(err))
		}
	}
}

func (h *Host) isCommand(name string) bool {
	switch name {
	case "join", "start", "leave":
		return true
	}
	return h.hub.HasCommand(name)
}

func (h *Host) join(ctx context.Context, in Incoming, tail string) {
	aff, class, name, err := ParseJoinArgs(tail)
	if err != nil {
		h.reply(in.UserID, tgui.Esc(JoinUsage))
		return
	}
	if name == "" {
		name = defaultName(in)
	}
	p := storage.Profile{
		ID:          sessionID(in.UserID),
		DisplayName: name,
		Affiliation: aff.String(),
		Class:       class.String(),
		UpdatedAt:   time.Now().UTC(),
	}
	if h.store != nil {
		if err := h.store.PutProfile(ctx, p); err != nil {
			h.log.Warn("profile save failed", logx.String("id", p.ID), logx.Err(err))
		}
	}
	h.login(in.UserID, p)
}

// start rejoins with the saved profile, or explains /join.
func (h *Host) start(ctx context.Context, in Incoming) {
	if h.store == nil {
		h.reply(in.UserID, tgui.Esc(JoinUsage))
		return
	}
	p, err := h.store.GetProfile(ctx, sessionID(in.UserID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.log.Warn("profile load failed", logx.Int64("user_id", in.UserID), logx.Err(err))
		}
		h.reply(in.UserID, tgui.Esc(JoinUsage))
		return
	}
	h.login(in.UserID, p)
}

func (h *Host) login(userID int64, p storage.Profile) {
	aff, _ := worldchat.ParseAffiliation(p.Affiliation)
	class := worldchat.ParseClass(p.Class)
	sess := presence.NewSession(p.ID, p.DisplayName, aff, class, func(line string) error {
		return h.deliver(userID, tgui.Esc(tgui.Clip(worldchat.StripMarkup(line), tgui.MaxMessageLen)))
	})
	h.dir.Join(sess)
	h.reply(userID, tgui.JoinH("", "Joined world chat as ", tgui.B(p.DisplayName), tgui.Esc(fmt.Sprintf(" (%s).", aff))))
	h.hub.Login(sess)
}

// leave quits world chat. "/leave forget" also drops the saved profile.
func (h *Host) leave(ctx context.Context, in Incoming, tail string) {
	forget := strings.EqualFold(strings.TrimSpace(tail), "forget")
	if forget && h.store != nil {
		if err := h.store.DeleteProfile(ctx, sessionID(in.UserID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.log.Warn("profile delete failed", logx.Int64("user_id", in.UserID), logx.Err(err))
		}
	}
	sess, ok := h.dir.Leave(sessionID(in.UserID))
	if !ok {
		if !forget {
			h.reply(in.UserID, tgui.Esc(NotJoinedMsg))
			return
		}
	} else {
		h.hub.Logout(sess)
	}
	if forget {
		h.reply(in.UserID, tgui.JoinH("", tgui.Esc(LeftMsg+" "), tgui.I("Saved profile removed.")))
		return
	}
	h.reply(in.UserID, tgui.Esc(LeftMsg))
}

func (h *Host) reply(userID int64, text tgui.H) {
	if err := h.deliver(userID, text); err != nil {
		h.log.Debug("reply dropped", logx.Int64("user_id", userID), logx.Err(err))
	}
}

func (h *Host) deliver(userID int64, text tgui.H) error {
	return h.out.Enqueue(sessionID(userID), func(ctx context.Context) error {
		_, err := h.msg.Send(tele.ChatID(userID), text.String(), tele.ModeHTML)
		return err
	})
}

func defaultName(in Incoming) string {
	if n := strings.TrimSpace(in.FirstName); n != "" {
		return n
	}
	if n := strings.TrimSpace(in.Username); n != "" {
		return n
	}
	return strconv.FormatInt(in.UserID, 10)
}

// ParseJoinArgs parses "<side> [class] [name...]". A second word that is not
// a class name starts the display name.
func ParseJoinArgs(tail string) (worldchat.Affiliation, worldchat.Class, string, error) {
	fields := strings.Fields(tail)
	if len(fields) == 0 {
		return worldchat.Alliance, worldchat.ClassUnknown, "", errors.New("missing side")
	}
	aff, ok := worldchat.ParseAffiliation(fields[0])
	if !ok {
		return worldchat.Alliance, worldchat.ClassUnknown, "", fmt.Errorf("unknown side %q", fields[0])
	}
	rest := fields[1:]
	class := worldchat.ClassUnknown
	if len(rest) > 0 {
		if c := worldchat.ParseClass(rest[0]); c != worldchat.ClassUnknown {
			class = c
			rest = rest[1:]
		}
	}
	return aff, class, strings.Join(rest, " "), nil
}
