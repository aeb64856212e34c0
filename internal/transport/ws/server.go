// Package ws hosts world chat participants over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"worldchat/internal/presence"
	"worldchat/internal/relay"
	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
)

var ErrSlowConsumer = errors.New("websocket client too slow")

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	maxFrameSize = 4096
)

type Config struct {
	Addr           string
	Path           string
	AllowedOrigins []string
}

// Frame is the JSON envelope exchanged with clients.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Lang    string `json:"lang,omitempty"`
	Command string `json:"command,omitempty"`
	Args    string `json:"args,omitempty"`
	Text    string `json:"text,omitempty"`
}

type Server struct {
	cfg Config
	hub *relay.Hub
	dir *presence.Registry
	log logx.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	srv   *http.Server
	ln    net.Listener
	conns map[*client]struct{}
}

func New(cfg Config, hub *relay.Hub, dir *presence.Registry, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "/ws"
	}
	s := &Server{cfg: cfg, hub: hub, dir: dir, log: log, conns: map[*client]struct{}{}}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return originAllowed(r, cfg.AllowedOrigins)
		}
	}
	return s
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler serving the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"online": s.dir.Len()})
	})
	return mux
}

// Start binds the listener and serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.srv, s.ln = srv, ln
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket server stopped", logx.Err(err))
		}
	}()
	s.log.Info("websocket host listening", logx.String("addr", ln.Addr().String()), logx.String("path", s.cfg.Path))
	return nil
}

// Addr is the bound address (useful with ":0").
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	conns := make([]*client, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	// Shutdown ignores hijacked connections.
	for _, c := range conns {
		_ = c.conn.Close()
	}
	s.log.Info("websocket host stopped")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	aff, ok := worldchat.ParseAffiliation(q.Get("side"))
	if !ok {
		http.Error(w, "side must be alliance or horde", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = id
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan Frame, sendBuffer), done: make(chan struct{})}
	sess := presence.NewSession(id, name, aff, worldchat.ParseClass(q.Get("class")), func(line string) error {
		return c.enqueue(Frame{Type: "system", Text: line})
	})
	c.sess = sess
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writeLoop()
	if prev := s.dir.Join(sess); prev != nil {
		s.dropClient(prev)
	}
	s.hub.Login(sess)
	s.log.Debug("participant joined", logx.String("id", id), logx.String("side", aff.String()))
	_ = c.enqueue(Frame{Type: "welcome", ID: id})

	s.readLoop(c, sess)

	close(c.done)
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.dir.LeaveSession(sess) {
		s.hub.Logout(sess)
	}
	s.log.Debug("participant left", logx.String("id", id))
}

// dropClient closes the socket still bound to a session that a newer login
// with the same id replaced.
func (s *Server) dropClient(sess *presence.Session) {
	s.mu.Lock()
	var old *client
	for c := range s.conns {
		if c.sess == sess {
			old = c
			break
		}
	}
	s.mu.Unlock()
	if old == nil {
		return
	}
	s.log.Debug("closing replaced connection", logx.String("id", sess.ID()))
	_ = old.conn.Close()
}

func (s *Server) readLoop(c *client, sess *presence.Session) {
	c.conn.SetReadLimit(maxFrameSize)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "chat":
			lang := relay.Language(strings.ToLower(f.Lang))
			if lang == "" {
				lang = relay.LangCommon
			}
			msg := relay.ChannelMessage{Channel: f.Channel, Lang: lang, Text: f.Text}
			if !s.hub.ObserveChannel(sess, msg) {
				_ = c.enqueue(Frame{Type: "channel", Channel: f.Channel, Text: f.Text})
			}
		case "command":
			if !s.hub.Dispatch(f.Command, sess, f.Args) {
				_ = c.enqueue(Frame{Type: "error", Text: "unknown command: " + f.Command})
			}
		default:
			_ = c.enqueue(Frame{Type: "error", Text: "unknown frame type: " + f.Type})
		}
	}
}

type client struct {
	conn *websocket.Conn
	sess *presence.Session
	send chan Frame
	done chan struct{}
}

func (c *client) enqueue(f Frame) error {
	select {
	case <-c.done:
		return presence.ErrSessionClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		}
	}
}
