// Package convo holds the Conversation Context: the cross-turn state a
// single user accumulates. Each field is mutated only by the handler
// that owns it; the router and other handlers read it for ordinal and
// pronoun resolution ("reply to this email", "send them the photo").
package convo

import "sync"

const maxTurns = 10

type Turn struct {
	Role    string
	Content string
}

// EmailRef is one entry of the last spoken email listing, kept so "1番目
// のメール" resolves to a real message id later.
type EmailRef struct {
	ID       string
	FromName string
	FromAddr string
	Subject  string
	Date     string
}

type Context struct {
	mu        sync.Mutex
	turns     []Turn
	emails    []EmailRef
	lastPhoto string
}

func New() *Context { return &Context{} }

// AppendTurn records a chat turn, keeping only the trailing window.
func (c *Context) AppendTurn(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Content: content})
	if len(c.turns) > maxTurns {
		c.turns = c.turns[len(c.turns)-maxTurns:]
	}
}

func (c *Context) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// SetEmails replaces the remembered listing (owned by the mail handler).
func (c *Context) SetEmails(refs []EmailRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append([]EmailRef(nil), refs...)
}

// EmailByOrdinal returns the n-th (1-based) email of the last listing.
func (c *Context) EmailByOrdinal(n int) (EmailRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.emails) {
		return EmailRef{}, false
	}
	return c.emails[n-1], true
}

func (c *Context) EmailCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.emails)
}

// SetLastPhoto records the most recent camera shot (owned by the camera
// handler); the mail handler reads it for the photo-attachment handoff.
func (c *Context) SetLastPhoto(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPhoto = path
}

func (c *Context) LastPhoto() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPhoto
}
