package collector

import (
	"context"
	"strings"
	"sync"
)

// mockExecutor records commands and answers from a lookup keyed by the joined arguments
type mockExecutor struct {
	mu       sync.Mutex
	commands []string
	outputs  map[string]string
	errs     map[string]error
	// Fn overrides the lookup when set
	Fn func(args []string) (string, error)
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{outputs: make(map[string]string), errs: make(map[string]error)}
}

func (m *mockExecutor) ExecuteWithOutput(ctx context.Context, name string, args ...string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	m.mu.Lock()
	m.commands = append(m.commands, key)
	m.mu.Unlock()

	if m.Fn != nil {
		return m.Fn(args)
	}
	for prefix, err := range m.errs {
		if strings.HasPrefix(key, prefix) {
			return "", err
		}
	}
	for prefix, out := range m.outputs {
		if strings.HasPrefix(key, prefix) {
			return out, nil
		}
	}
	return "", nil
}
