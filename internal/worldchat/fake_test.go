package worldchat

import (
	"errors"
	"sync"
)

type fakePlayer struct {
	id      string
	aff     Affiliation
	name    string
	class   Class
	present bool
	fail    bool

	mu  sync.Mutex
	got []string
}

func newPlayer(id string, aff Affiliation) *fakePlayer {
	return &fakePlayer{id: id, aff: aff, name: id, class: Mage, present: true}
}

func (p *fakePlayer) ID() string               { return p.id }
func (p *fakePlayer) Affiliation() Affiliation { return p.aff }
func (p *fakePlayer) DisplayName() string      { return p.name }
func (p *fakePlayer) Class() Class             { return p.class }
func (p *fakePlayer) Present() bool            { return p.present }
func (p *fakePlayer) Notify(line string) error {
	if p.fail {
		return errors.New("gone")
	}
	p.mu.Lock()
	p.got = append(p.got, line)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.got...)
}

type fakeDir []*fakePlayer

func (d fakeDir) Each(fn func(Participant) bool) {
	for _, p := range d {
		if !fn(p) {
			return
		}
	}
}

func (d fakeDir) Find(id string) (Participant, bool) {
	for _, p := range d {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}
