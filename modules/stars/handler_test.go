package stars

import (
	"bufio"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// testHarness wires up a Directory, a permissive ConfigSnapshot, and a
// Router shared by every simulated client connection in a test, mirroring
// the in-process test-double style used for the handshake tests this
// package's predecessor ran over net.Pipe.
type testHarness struct {
	t      *testing.T
	dir    *Directory
	cfg    *ConfigSnapshot
	router *Router
	log    *logrus.Logger
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	allowAll, err := CompilePattern("*")
	require.NoError(t, err)

	cfg := &ConfigSnapshot{
		Port:              0,
		hostAllow:         PatternSet{allowAll},
		commandAllow:      nil,
		commandDeny:       nil,
		aliases:           newAliasTable(),
		reconnectableFrom: PatternSet{allowAll},
		reconnectableName: PatternSet{allowAll},
		shutdownAllow:     PatternSet{allowAll},
		perNodeAllow:      make(map[string]PatternSet),
		secret:            []byte("test-secret"),
	}
	log, _ := test.NewNullLogger()
	dir := NewDirectory(time.Second)
	h := &testHarness{t: t, dir: dir, cfg: cfg, log: log}
	h.router = NewRouter(dir, cfg, log, func() {})
	return h
}

// client is a simulated connection: its own net.Pipe end plus a buffered
// reader for convenience assertions.
type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *client) readLine(t *testing.T) string {
	t.Helper()
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

// connectAndRegister drives one simulated client through Greet, AwaitName,
// and Challenged so that its handler registers it under name. It returns as
// soon as the challenge response has been sent; the handler goroutine then
// completes the registration asynchronously.
func (h *testHarness) connectAndRegister(t *testing.T, name string) *client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	c := &client{conn: clientConn, reader: bufio.NewReader(clientConn)}

	host := HostDescriptor{IP: "127.0.0.1", Hostname: "127.0.0.1"}
	key := h.dir.GenerateKey()
	hdl := newHandler(serverConn, host, key, h.dir, h.cfg, h.router, h.log, 0)
	go hdl.run()

	banner := c.readLine(t)
	require.Contains(t, banner, serverID)

	c.send(t, name)

	nonceLine := c.readLine(t)
	nonce, err := hex.DecodeString(nonceLine)
	require.NoError(t, err)
	ch := challenge{nonce: nonce}
	response := ch.expectedResponse(h.cfg.Secret(), key)
	c.send(t, response)

	return c
}

func TestHandshakeHappyPathAndMessageDelivery(t *testing.T) {
	h := newTestHarness(t)
	a := h.connectAndRegister(t, "a")
	b := h.connectAndRegister(t, "b")

	// a observes b's arrival event.
	require.Contains(t, a.readLine(t), "@b")

	b.send(t, "a hello world")
	line := a.readLine(t)
	require.Equal(t, "b hello world", line)
}

func TestAliasResolution(t *testing.T) {
	h := newTestHarness(t)
	require.NoError(t, h.cfg.aliases.add("x", "a"))

	a := h.connectAndRegister(t, "a")
	b := h.connectAndRegister(t, "b")
	require.Contains(t, a.readLine(t), "@b")

	b.send(t, "x ping")
	line := a.readLine(t)
	require.Equal(t, "b ping", line)

	names := h.dir.Names()
	require.Equal(t, []string{"a", "b"}, names)
}

func TestPolicyDenial(t *testing.T) {
	h := newTestHarness(t)
	deny, err := CompilePattern("danger*")
	require.NoError(t, err)
	h.cfg.commandDeny = PatternSet{deny}

	a := h.connectAndRegister(t, "a")
	b := h.connectAndRegister(t, "b")
	require.Contains(t, a.readLine(t), "@b")

	b.send(t, "a dangerzone arg")
	line := b.readLine(t)
	require.Equal(t, "System Er. PolicyDenied", line)
}

func TestNameCollisionWithoutReconnectRight(t *testing.T) {
	h := newTestHarness(t)
	h.cfg.reconnectableName = nil // nobody has reconnect rights

	a := h.connectAndRegister(t, "a")

	serverConn, clientConn := net.Pipe()
	c := &client{conn: clientConn, reader: bufio.NewReader(clientConn)}
	key := h.dir.GenerateKey()
	hdl := newHandler(serverConn, HostDescriptor{IP: "127.0.0.1", Hostname: "127.0.0.1"}, key, h.dir, h.cfg, h.router, h.log, 0)
	go hdl.run()
	c.readLine(t) // banner
	c.send(t, "a")

	line := c.readLine(t)
	require.Equal(t, "System Er. NameInUse", line)

	// original a is unaffected and still registered
	require.True(t, h.dir.Has("a"))
	_ = a
}

func TestPerNodeAllowRejectsAtRegistration(t *testing.T) {
	h := newTestHarness(t)
	onlyLAN, err := CompilePattern("10.0.0.*")
	require.NoError(t, err)
	h.cfg.perNodeAllow["a"] = PatternSet{onlyLAN}

	serverConn, clientConn := net.Pipe()
	c := &client{conn: clientConn, reader: bufio.NewReader(clientConn)}
	host := HostDescriptor{IP: "8.8.8.8", Hostname: "8.8.8.8"}
	key := h.dir.GenerateKey()
	hdl := newHandler(serverConn, host, key, h.dir, h.cfg, h.router, h.log, 0)
	go hdl.run()

	c.readLine(t) // banner
	c.send(t, "a")

	line := c.readLine(t)
	require.Equal(t, "System Er. HostRejected", line)
	require.False(t, h.dir.Has("a"))
}

func TestReconnectionEvictionIsDeterministic(t *testing.T) {
	h := newTestHarness(t)
	logger := h.connectAndRegister(t, "logger")
	a := h.connectAndRegister(t, "a")
	require.Contains(t, logger.readLine(t), "@a")

	// Registering a second "a" evicts the first one and closes its socket;
	// the reconnecting peer must deterministically win the name rather than
	// racing a's async cleanup.
	newA := h.connectAndRegister(t, "a")

	require.Contains(t, logger.readLine(t), "!a")
	require.Contains(t, logger.readLine(t), "@a")

	require.True(t, h.dir.Has("a"))

	newA.send(t, "logger ping")
	require.Equal(t, "a ping", logger.readLine(t))

	_, err := a.conn.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	h := newTestHarness(t)
	logger := h.connectAndRegister(t, "logger")
	alpha1 := h.connectAndRegister(t, "alpha1")
	require.Contains(t, logger.readLine(t), "@alpha1")
	alpha2 := h.connectAndRegister(t, "alpha2")
	require.Contains(t, logger.readLine(t), "@alpha2")
	require.Contains(t, alpha1.readLine(t), "@alpha2")
	beta := h.connectAndRegister(t, "beta")
	require.Contains(t, logger.readLine(t), "@beta")
	require.Contains(t, alpha1.readLine(t), "@beta")
	require.Contains(t, alpha2.readLine(t), "@beta")

	logger.send(t, ">alpha* status up")

	require.Equal(t, "logger status up", alpha1.readLine(t))
	require.Equal(t, "logger status up", alpha2.readLine(t))
	_ = beta
}
