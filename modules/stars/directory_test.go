package stars

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, name string, key uint16) (*Node, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	terminated := false
	n := &Node{
		Name:     name,
		Key:      key,
		Created:  time.Now(),
		conn:     server,
		verbose:  true,
		departed: make(chan struct{}),
		terminate: func() {
			if !terminated {
				terminated = true
				server.Close()
			}
		},
	}
	t.Cleanup(func() { client.Close() })
	return n, client
}

func TestDirectoryRegisterLookupRemove(t *testing.T) {
	dir := NewDirectory(time.Second)
	node, _ := newTestNode(t, "a", 1)

	require.NoError(t, dir.Register(node))
	assert.True(t, dir.Has("a"))

	got, ok := dir.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, node, got)

	dir.Remove("a")
	assert.False(t, dir.Has("a"))
	// Idempotent.
	dir.Remove("a")
}

func TestDirectoryRegisterNameCollision(t *testing.T) {
	dir := NewDirectory(time.Second)
	first, _ := newTestNode(t, "a", 1)
	second, _ := newTestNode(t, "a", 2)

	require.NoError(t, dir.Register(first))
	err := dir.Register(second)
	assert.Error(t, err)
}

func TestDirectoryGenerateKeyNoCollision(t *testing.T) {
	dir := NewDirectory(time.Second)
	node, _ := newTestNode(t, "a", 0)
	k := dir.GenerateKey()
	node.Key = k
	require.NoError(t, dir.Register(node))

	for i := 0; i < 100; i++ {
		k2 := dir.GenerateKey()
		assert.NotEqual(t, node.Key, k2)
	}
}

func TestDirectoryNamesSorted(t *testing.T) {
	dir := NewDirectory(time.Second)
	c, _ := newTestNode(t, "charlie", 3)
	a, _ := newTestNode(t, "alpha", 1)
	b, _ := newTestNode(t, "bravo", 2)
	require.NoError(t, dir.Register(c))
	require.NoError(t, dir.Register(a))
	require.NoError(t, dir.Register(b))

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, dir.Names())
}
