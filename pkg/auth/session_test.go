package auth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	assert.False(t, s.Authenticated())

	s.Login("T1", User{ID: "1", Username: "alice"}, "R1")
	assert.True(t, s.Authenticated())
	assert.Equal(t, "T1", s.Token())
	assert.Equal(t, "R1", s.RefreshToken())

	u, ok := s.User()
	assert.True(t, ok)
	assert.Equal(t, "alice", u.Username)

	s.SetToken("T2")
	assert.Equal(t, "T2", s.Token())
	assert.Equal(t, "R1", s.RefreshToken())

	s.Logout()
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())
	assert.Empty(t, s.RefreshToken())
	_, ok = s.User()
	assert.False(t, ok)
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := NewSession()
	s.Login("T1", User{ID: "1"}, "R1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetToken("T2")
		}()
		go func() {
			defer wg.Done()
			_ = s.Token()
		}()
	}
	wg.Wait()

	assert.Equal(t, "T2", s.Token())
}
