package stars

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/starslab/stars/modules"
)

// handlerState names the per-client state machine's current state. It is
// recorded on the handler but does not drive it: the control flow itself is
// the shape of run(), not a dispatch table over this type.
type handlerState int

const (
	stateGreet handlerState = iota
	stateAwaitName
	stateChallenged
	stateRegistered
	stateTerminating
)

func (s handlerState) String() string {
	switch s {
	case stateGreet:
		return "Greet"
	case stateAwaitName:
		return "AwaitName"
	case stateChallenged:
		return "Challenged"
	case stateRegistered:
		return "Registered"
	case stateTerminating:
		return "Terminating"
	default:
		return "Unknown"
	}
}

// handler runs the per-client state machine for one accepted socket: greet,
// authenticate, register, then serve the read loop until the socket closes.
// One handler exists per live connection, running on its own goroutine,
// the Go analogue of the one-thread-per-connection model.
type handler struct {
	conn   net.Conn
	reader *bufio.Reader
	host   HostDescriptor
	key    uint16

	dir    *Directory
	cfg    *ConfigSnapshot
	router *Router
	log    *logrus.Logger

	readTimeout time.Duration

	state handlerState
	node  *Node
}

func newHandler(conn net.Conn, host HostDescriptor, key uint16, dir *Directory, cfg *ConfigSnapshot, router *Router, log *logrus.Logger, readTimeout time.Duration) *handler {
	return &handler{
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 4096),
		host:        host,
		key:         key,
		dir:         dir,
		cfg:         cfg,
		router:      router,
		log:         log,
		readTimeout: readTimeout,
		state:       stateGreet,
	}
}

// run drives the handler through its entire lifecycle and returns only once
// the connection is fully torn down.
func (h *handler) run() {
	defer h.terminate()

	if !h.greet() {
		return
	}
	name, ok := h.awaitName()
	if !ok {
		return
	}
	if !h.challenge(name) {
		return
	}
	h.serve()
}

// greet sends the banner line and advances unconditionally, per section 4.2.
func (h *handler) greet() bool {
	h.state = stateGreet
	banner := fmt.Sprintf("%s %04x\n", serverID, h.key)
	if err := h.writeRaw(banner); err != nil {
		return false
	}
	h.state = stateAwaitName
	return true
}

// awaitName reads one line as a candidate node name, validates it, checks
// the per-node host policy now that the name is known, and resolves a
// collision with an existing registration via the reconnection policy. It
// returns the accepted name and true, or ("", false) if the connection must
// be torn down without registering.
func (h *handler) awaitName() (string, bool) {
	line, err := h.readLine()
	if err != nil {
		return "", false
	}
	name := h.cfg.ResolveAlias(strings.TrimSpace(line))

	if !validNodeName(name) {
		h.writeError(modules.ErrNameInvalid)
		return "", false
	}

	if !h.cfg.HostAllowed(h.host.Hostname, h.host.IP, name) {
		h.writeError(modules.ErrHostRejected)
		return "", false
	}

	if h.dir.Has(name) {
		if h.cfg.Reconnectable(h.host.Hostname, h.host.IP, name) {
			// Evict blocks until the old handler has removed itself from
			// the Directory, so Register below deterministically sees the
			// name free.
			h.dir.Evict(name)
		} else {
			h.writeError(modules.ErrNameInUse)
			return "", false
		}
	}
	return name, true
}

// validNodeName checks the syntactic rules from section 3: non-empty, no
// whitespace, and no reserved leading character.
func validNodeName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return false
	}
	return !strings.ContainsRune(modules.ReservedLeadingChars, rune(name[0]))
}

// challenge drives the Challenged state: send a nonce, read the response,
// verify it, and on success register the node and broadcast its arrival.
func (h *handler) challenge(name string) bool {
	h.state = stateChallenged
	c := newChallenge()
	if err := h.writeRaw(c.nonceHex() + "\n"); err != nil {
		return false
	}

	response, err := h.readLine()
	if err != nil {
		return false
	}
	if !c.verify(h.cfg.Secret(), h.key, strings.TrimSpace(response)) {
		h.writeError(modules.ErrAuthFailed)
		return false
	}

	node := &Node{
		Name:     name,
		Host:     h.host,
		Key:      h.key,
		Created:  time.Now(),
		conn:     h.conn,
		verbose:  true,
		departed: make(chan struct{}),
		terminate: func() {
			h.conn.Close()
		},
	}
	if err := h.dir.Register(node); err != nil {
		h.writeError(modules.ErrNameInUse)
		return false
	}
	h.node = node
	h.state = stateRegistered
	h.log.WithField("node", name).Info("node registered")

	h.dir.Broadcast(anyPattern, modules.ServerNodeName, systemEventCommand, "@"+name, name)
	return true
}

// serve is the Registered-state read loop: one line in, one Router dispatch,
// repeat until EOF, a read error, or the configured read timeout elapses
// with no data.
func (h *handler) serve() {
	for {
		if h.readTimeout > 0 {
			h.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		}
		line, err := h.readLine()
		if err != nil {
			return
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		h.router.Route(h.node, trimmed)
	}
}

// terminate performs the Terminating state's cleanup: remove the node from
// the directory if registered, broadcast its departure, and close the
// socket. Idempotent; safe to call even if registration never completed.
func (h *handler) terminate() {
	if h.state == stateTerminating {
		return
	}
	h.state = stateTerminating
	h.conn.Close()
	if h.node == nil {
		return
	}
	h.dir.Remove(h.node.Name)
	h.log.WithField("node", h.node.Name).Info("node departed")
	h.dir.Broadcast(anyPattern, modules.ServerNodeName, systemEventCommand, "!"+h.node.Name, h.node.Name)
	close(h.node.departed)
}

// readLine reads one CRLF-or-LF-terminated line, normalizing \r\n to \n and
// stripping the trailing newline, bounded by maxLineLength.
func (h *handler) readLine() (string, error) {
	line, err := h.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > maxLineLength {
		return "", fmt.Errorf("line exceeds maximum length")
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (h *handler) writeRaw(s string) error {
	h.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err := h.conn.Write([]byte(s))
	return err
}

// writeError sends the stable `System Er. <reason>` line used for every
// pre-registration rejection.
func (h *handler) writeError(err error) {
	h.writeRaw(fmt.Sprintf("%s %s %s\n", modules.ServerNodeName, modules.ErrorCommand, modules.ReasonToken(err)))
}

// anyPattern matches every node name; used for the unconditional System
// arrival/departure broadcasts.
var anyPattern = mustCompilePattern("*")

func mustCompilePattern(src string) Pattern {
	p, err := CompilePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}
