package render

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SessionPool hands out browser sessions and recycles each one after a
// fixed number of renders. Long-lived browser sessions accumulate memory
// and stale anti-bot state, so rotation keeps them fresh.
type SessionPool struct {
	client  Client
	maxUses int

	mu       sync.Mutex
	sessions []*pooledSession
}

type pooledSession struct {
	id   string
	uses int
}

// NewSessionPool creates a pool over client. maxUses <= 0 defaults to 20
// renders per session.
func NewSessionPool(client Client, maxUses int) *SessionPool {
	if maxUses <= 0 {
		maxUses = 20
	}
	return &SessionPool{client: client, maxUses: maxUses}
}

// Render acquires a session, renders url in it, and returns it to the
// pool. A session that reaches its use budget is closed instead of being
// returned; the next caller gets a fresh one.
func (p *SessionPool) Render(ctx context.Context, url string) (*Page, error) {
	sess, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	page, renderErr := p.client.Render(ctx, sess.id, url)
	sess.uses++

	if renderErr != nil {
		// A failed render may mean a dead browser; drop the session.
		p.discard(ctx, sess)
		return nil, renderErr
	}

	p.release(ctx, sess)
	return page, nil
}

// Close releases every pooled session.
func (p *SessionPool) Close(ctx context.Context) {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	for _, s := range sessions {
		if err := p.client.CloseSession(ctx, s.id); err != nil {
			zap.L().Debug("closing pooled session failed",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
		}
	}
}

func (p *SessionPool) acquire(ctx context.Context) (*pooledSession, error) {
	p.mu.Lock()
	if n := len(p.sessions); n > 0 {
		sess := p.sessions[n-1]
		p.sessions = p.sessions[:n-1]
		p.mu.Unlock()
		return sess, nil
	}
	p.mu.Unlock()

	created, err := p.client.CreateSession(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "render: acquire session")
	}
	return &pooledSession{id: created.ID}, nil
}

func (p *SessionPool) release(ctx context.Context, sess *pooledSession) {
	if sess.uses >= p.maxUses {
		zap.L().Debug("recycling render session",
			zap.String("session_id", sess.id),
			zap.Int("uses", sess.uses),
		)
		p.discard(ctx, sess)
		return
	}

	p.mu.Lock()
	p.sessions = append(p.sessions, sess)
	p.mu.Unlock()
}

func (p *SessionPool) discard(ctx context.Context, sess *pooledSession) {
	if err := p.client.CloseSession(ctx, sess.id); err != nil {
		zap.L().Debug("closing render session failed",
			zap.String("session_id", sess.id),
			zap.Error(err),
		)
	}
}
