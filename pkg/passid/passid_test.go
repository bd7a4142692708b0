package passid

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shapeRE = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestNewShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := New()
		require.NoError(t, err)
		assert.Regexp(t, shapeRE, id)
		assert.True(t, Valid(id))
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("AB12CD"))
	assert.False(t, Valid("ab12cd"), "lowercase rejected")
	assert.False(t, Valid("AB12C"), "too short")
	assert.False(t, Valid("AB12CDE"), "too long")
	assert.False(t, Valid("AB 2CD"), "space rejected")
	assert.False(t, Valid(""))
}

func TestConcurrentGenerationDistinct(t *testing.T) {
	const n = 1000
	const workers = 8

	var mu sync.Mutex
	seen := make(map[string]struct{}, n)
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/workers; i++ {
				id, err := New()
				if err != nil {
					errCh <- err
					return
				}
				if !shapeRE.MatchString(id) {
					errCh <- fmt.Errorf("bad shape: %q", id)
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
	// collisions at 36^6 over 1000 draws would indicate a broken generator
	assert.Len(t, seen, n)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	rejected := 0
	id, err := Issue(func(candidate string) error {
		if rejected < 3 {
			rejected++
			return fmt.Errorf("duplicate key: %w", ErrCollision)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rejected)
	assert.True(t, Valid(id))
}

func TestIssueFreshCandidatePerAttempt(t *testing.T) {
	var candidates []string
	_, err := Issue(func(candidate string) error {
		candidates = append(candidates, candidate)
		if len(candidates) < 2 {
			return ErrCollision
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.NotEqual(t, candidates[0], candidates[1], "a retry draws a new candidate")
}

func TestIssueSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := Issue(func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestIssueGivesUpEventually(t *testing.T) {
	calls := 0
	_, err := Issue(func(string) error {
		calls++
		return ErrCollision
	})
	require.Error(t, err)
	assert.Equal(t, maxAttempts, calls)
}
