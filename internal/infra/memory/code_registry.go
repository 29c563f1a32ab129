package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"quiz-session-service/internal/domain"
)

// codeAlphabet drops easily confused characters (0/O, 1/I/L) so codes stay
// human-typeable. Six characters over 31 symbols is ~887M combinations.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// CodeRegistry is an in-memory implementation of app.CodeRegistry. Generation
// and release are atomic against the live binding set, so two sessions can
// never transiently share a code.
type CodeRegistry struct {
	mu    sync.Mutex
	codes map[string]string // code -> session id
}

func NewCodeRegistry() *CodeRegistry {
	return &CodeRegistry{codes: make(map[string]string)}
}

func (r *CodeRegistry) Bind(_ context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for attempt := 0; attempt < 10; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes[code]; taken {
			continue
		}
		r.codes[code] = sessionID
		return code, nil
	}
	return "", fmt.Errorf("could not allocate a unique join code")
}

func (r *CodeRegistry) Resolve(_ context.Context, code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.codes[code]
	if !ok {
		return "", domain.ErrCodeNotFound
	}
	return sessionID, nil
}

func (r *CodeRegistry) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
	return nil
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
