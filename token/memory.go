// Package token provides engine.ResumeTokenManager implementations: an
// in-memory manager for tests and single-process deployments, and a Redis
// manager for multi-process production use (grounded on the pack's
// kubernaut example, which carries github.com/redis/go-redis/v9 as a
// direct dependency for similarly-shaped lease/token bookkeeping).
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/flowforge/enginecore/engine"
)

type tokenRecord struct {
	executionID string
	expiresAt   time.Time // zero means no expiry
	consumed    bool
}

// Memory is an in-memory engine.ResumeTokenManager.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]*tokenRecord
	byExec map[string]map[string]struct{} // executionID -> set of tokens
}

func NewMemory() *Memory {
	return &Memory{
		tokens: map[string]*tokenRecord{},
		byExec: map[string]map[string]struct{}{},
	}
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (m *Memory) Issue(_ context.Context, executionID string, deadlineUnixNano int64) (string, error) {
	tok, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	var expires time.Time
	if deadlineUnixNano > 0 {
		expires = time.Unix(0, deadlineUnixNano).UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok] = &tokenRecord{executionID: executionID, expiresAt: expires}
	if m.byExec[executionID] == nil {
		m.byExec[executionID] = map[string]struct{}{}
	}
	m.byExec[executionID][tok] = struct{}{}
	return tok, nil
}

func (m *Memory) Consume(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tokens[token]
	if !ok || rec.consumed {
		return "", engine.NewError(engine.CodeInvalidResumeToken, "resume token not found")
	}
	if !rec.expiresAt.IsZero() && rec.expiresAt.Before(time.Now().UTC()) {
		return "", engine.NewError(engine.CodeResumeTokenExpired, "resume token expired")
	}
	rec.consumed = true
	return rec.executionID, nil
}

func (m *Memory) Revoke(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok := range m.byExec[executionID] {
		if rec, ok := m.tokens[tok]; ok {
			rec.consumed = true
		}
	}
	return nil
}
