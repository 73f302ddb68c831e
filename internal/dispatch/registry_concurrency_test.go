package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRegistryConcurrentRegisterDelist drives N goroutines each through its
// own register/delist pair and asserts the registry settles back to empty:
// membership must be linearizable with respect to each node's own
// register/delist calls under contention.
func TestRegistryConcurrentRegisterDelist(t *testing.T) {
	r := newRegistry()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			nodeID := nodeIDFor(n)
			r.insert(nodeID)
			require.True(t, r.contains(nodeID))
			require.True(t, r.remove(nodeID))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 0, r.size())
}

func nodeIDFor(n int) string {
	return "node-" + string(rune('a'+n%26)) + string(rune('0'+n/26))
}
