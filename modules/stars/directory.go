package stars

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/starslab/stars/crypto"
	"github.com/starslab/stars/lock"
	"github.com/starslab/stars/modules"
)

// Node is a single registered client connection. It is created when a
// handler completes authentication and registration, mutated only by its
// owning handler (for the verbose flag) and by the Directory (on removal),
// and destroyed when the handler exits for any reason.
type Node struct {
	Name     string
	Host     HostDescriptor
	Key      uint16
	Created  time.Time

	conn net.Conn
	// writeMu serializes writes to conn. Held only across the single Write
	// call that delivers one message; never held across a directory lock or
	// any other node's writeMu.
	writeMu sync.Mutex

	// verbose gates whether this node receives System arrival/departure
	// broadcasts. Reset to true (the default) on every (re)registration.
	verboseMu sync.Mutex
	verbose   bool

	// terminate, closed exactly once, is how the directory or a router
	// decision (reconnection eviction, PeerWriteFailed) asks this node's
	// handler to shut down; the handler's read loop observes the resulting
	// socket error and proceeds to Terminating.
	terminate func()

	// departed is closed by the owning handler's terminate() once it has
	// removed this Node from the Directory, letting Evict block until the
	// old registration is actually gone before the caller proceeds.
	departed chan struct{}
}

// HostDescriptor identifies the remote end of a connection by both its
// resolved hostname and its IP literal, since either may satisfy a host
// pattern and the hostname falls back to the IP literal when reverse DNS
// fails.
type HostDescriptor struct {
	IP       string
	Hostname string
}

// resolveHost performs the accept-time reverse DNS lookup described in
// section 4.1: on failure, the IP literal stands in as the hostname.
func resolveHost(addr net.Addr) HostDescriptor {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	names, err := net.LookupAddr(host)
	if err != nil || len(names) == 0 {
		return HostDescriptor{IP: host, Hostname: host}
	}
	hostname := names[0]
	// net.LookupAddr returns names with a trailing dot; trim it so pattern
	// matching against allow.cfg entries (which never include one) behaves
	// as documented.
	for len(hostname) > 0 && hostname[len(hostname)-1] == '.' {
		hostname = hostname[:len(hostname)-1]
	}
	return HostDescriptor{IP: host, Hostname: hostname}
}

// Write delivers a reformatted message to the node, serialized behind the
// node's own write mutex. It never blocks on the directory lock; callers
// must already have released it before calling Write.
func (n *Node) Write(sender, command, argument string) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	line := sender + " " + command
	if argument != "" {
		line += " " + argument
	}
	line += "\n"

	n.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err := n.conn.Write([]byte(line))
	if err != nil {
		return errors.Extend(err, modules.ErrPeerWriteFailed)
	}
	return nil
}

// Terminate asks the node's handler to stop; idempotent.
func (n *Node) Terminate() {
	if n.terminate != nil {
		n.terminate()
	}
}

// SetVerbose toggles whether this node receives System broadcasts.
func (n *Node) SetVerbose(v bool) {
	n.verboseMu.Lock()
	n.verbose = v
	n.verboseMu.Unlock()
}

// Verbose reports the current System-broadcast setting.
func (n *Node) Verbose() bool {
	n.verboseMu.Lock()
	defer n.verboseMu.Unlock()
	return n.verbose
}

const writeDeadline = 10 * time.Second

// errNameExists is returned by Register when the requested name is already
// live; the caller (the connection handler) maps it to modules.ErrNameInUse.
var errNameExists = fmt.Errorf("node name already registered")

// Directory is the shared, mutable map from registered node name to live
// Node, with the invariant that names are unique and the inverse key-to-name
// mapping is unique at any instant. The directory-wide lock protects only
// membership; once a Node is looked up, writes to it go through the Node's
// own mutex and never hold the directory lock across network I/O.
type Directory struct {
	mu        lock.Lock
	byName    map[string]*Node
	byKey     map[uint16]string
}

// NewDirectory returns an empty Directory. maxLockTime bounds how long the
// directory-wide lock may be held before it is force-released and the
// event logged; see lock.Lock's doc comment.
func NewDirectory(maxLockTime time.Duration) *Directory {
	return &Directory{
		mu:     *lock.New(maxLockTime),
		byName: make(map[string]*Node),
		byKey:  make(map[uint16]string),
	}
}

// GenerateKey returns a node key not currently in use, re-rolling on
// collision. The keyspace (2^16) is large relative to any realistic live
// connection count, so an unbounded retry loop is used rather than an
// arbitrary cap, mirroring the rejection-sampling loop in crypto.RandIntn.
func (d *Directory) GenerateKey() uint16 {
	id := d.mu.RLock("Directory.GenerateKey")
	defer d.mu.RUnlock("Directory.GenerateKey", id)
	for {
		k := crypto.RandUint16()
		if _, exists := d.byKey[k]; !exists {
			return k
		}
	}
}

// Lookup returns the live Node registered under name, if any.
func (d *Directory) Lookup(name string) (*Node, bool) {
	id := d.mu.RLock("Directory.Lookup")
	defer d.mu.RUnlock("Directory.Lookup", id)
	n, ok := d.byName[name]
	return n, ok
}

// Has reports whether name is currently registered.
func (d *Directory) Has(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

// Register inserts n under n.Name. It fails with errNameExists if the name
// is already registered; callers are expected to have already resolved the
// reconnection policy (evicting any prior holder) before calling Register.
func (d *Directory) Register(n *Node) error {
	id := d.mu.Lock("Directory.Register")
	defer d.mu.Unlock("Directory.Register", id)
	if _, exists := d.byName[n.Name]; exists {
		return errNameExists
	}
	d.byName[n.Name] = n
	d.byKey[n.Key] = n.Name
	return nil
}

// Remove deletes the registration under name, if present. Idempotent.
func (d *Directory) Remove(name string) {
	id := d.mu.Lock("Directory.Remove")
	defer d.mu.Unlock("Directory.Remove", id)
	n, exists := d.byName[name]
	if !exists {
		return
	}
	delete(d.byName, name)
	delete(d.byKey, n.Key)
}

// Evict forcibly removes and terminates the node currently registered under
// name, used when a reconnecting peer has the right to displace it. It
// blocks until the old handler's own terminate() has removed the entry from
// the Directory (or evictTimeout elapses), so the reconnecting peer
// deterministically wins the name instead of racing Register against the
// old handler's asynchronous cleanup. It is a no-op if no node is
// registered under name.
func (d *Directory) Evict(name string) {
	n, ok := d.Lookup(name)
	if !ok {
		return
	}
	n.Terminate()
	select {
	case <-n.departed:
	case <-time.After(evictTimeout):
	}
}

// Names returns the sorted set of currently registered node names, used by
// the listnodes built-in.
func (d *Directory) Names() []string {
	id := d.mu.RLock("Directory.Names")
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	d.mu.RUnlock("Directory.Names", id)
	sort.Strings(names)
	return names
}

// Broadcast delivers (command, argument) as if sent by sender to every
// registered node whose name matches pattern (for System events, only to
// nodes whose verbose flag is set), excluding the sender's own node (by name) when exclude is non-empty. The
// directory lock is released before any write, per the write-serialization
// design: only per-node locks are held across I/O.
func (d *Directory) Broadcast(pattern Pattern, sender, command, argument, exclude string) {
	for _, n := range d.snapshot() {
		if n.Name == exclude {
			continue
		}
		if !pattern.Match(n.Name) {
			continue
		}
		if command == systemEventCommand && !n.Verbose() {
			continue
		}
		if err := n.Write(sender, command, argument); err != nil {
			n.Terminate()
		}
	}
}

// snapshot returns a point-in-time copy of the registered nodes, taken under
// the directory lock and released before the caller does anything with it.
func (d *Directory) snapshot() []*Node {
	id := d.mu.RLock("Directory.snapshot")
	defer d.mu.RUnlock("Directory.snapshot", id)
	out := make([]*Node, 0, len(d.byName))
	for _, n := range d.byName {
		out = append(out, n)
	}
	return out
}

const systemEventCommand = "event"
