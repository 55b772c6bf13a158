// Package stars implements the message-switching fabric: the acceptor loop,
// the per-connection state machine, the command router, and the shared node
// directory.
package stars

import (
	"fmt"
	"net"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/threadgroup"
	"github.com/sirupsen/logrus"
	"github.com/starslab/stars/build"
	"github.com/starslab/stars/modules"
)

// Server owns the listening socket, the shared Directory, and the
// Configuration Snapshot. It is the top-level object constructed by
// cmd/stars and driven by its Serve method until shutdown is requested or
// the listener fails.
type Server struct {
	listener net.Listener
	cfg      *ConfigSnapshot
	dir      *Directory
	router   *Router
	log      *logrus.Logger

	readTimeout time.Duration

	tg threadgroup.ThreadGroup
}

// New binds the listener on cfg.Port and constructs a Server ready to
// Serve. readTimeout of 0 disables the per-connection read timeout.
func New(cfg *ConfigSnapshot, log *logrus.Logger, readTimeout time.Duration) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, errors.Extend(err, modules.ErrBind)
	}

	s := &Server{
		listener:    listener,
		cfg:         cfg,
		dir:         NewDirectory(maxDirectoryLockTime()),
		log:         log,
		readTimeout: readTimeout,
	}
	s.router = NewRouter(s.dir, cfg, log, s.initiateShutdown)

	s.tg.OnStop(func() error {
		err := s.listener.Close()
		for _, n := range s.dir.snapshot() {
			n.Terminate()
		}
		return err
	})

	return s, nil
}

// Addr returns the bound listener's address, mainly useful for tests that
// bind to port 0 and need to discover what was actually assigned.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed by Close or by
// the shutdownserver built-in. It returns nil on a clean shutdown and a
// non-nil error if the listener failed for any other reason.
func (s *Server) Serve() error {
	if err := s.tg.Add(); err != nil {
		return err
	}
	defer s.tg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.tg.StopChan():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}
			return err
		}
		s.handleAccept(conn)
	}
}

// handleAccept resolves the peer's host, evaluates host_allow, mints a node
// key, and spawns a handler goroutine. Per section 4.1, the accept loop
// never blocks on a handler: once the socket is handed off, this function
// returns immediately.
func (s *Server) handleAccept(conn net.Conn) {
	host := resolveHost(conn.RemoteAddr())

	if !s.cfg.HostAllowed(host.Hostname, host.IP, "") {
		s.log.WithField("host", host.Hostname).Info("rejected connection: host not allowed")
		conn.Write([]byte(modules.ServerNodeName + " " + modules.ErrorCommand + " " + modules.ReasonToken(modules.ErrHostRejected) + "\n"))
		conn.Close()
		return
	}

	key := s.dir.GenerateKey()
	h := newHandler(conn, host, key, s.dir, s.cfg, s.router, s.log, s.readTimeout)

	if err := s.tg.Add(); err != nil {
		conn.Close()
		return
	}
	go func() {
		defer s.tg.Done()
		h.run()
	}()
}

// initiateShutdown is the Router's shutdownserver hook. Stop is called on a
// new goroutine because it blocks until every handler goroutine (including
// the one invoking this hook) has returned.
func (s *Server) initiateShutdown() {
	go s.Close()
}

// Close stops accepting new connections, terminates every registered node,
// and waits for every in-flight handler to finish, draining the Directory to
// empty. A handler that has not yet registered is not terminated; Close
// waits for its own read to end.
func (s *Server) Close() error {
	return s.tg.Stop()
}

// maxDirectoryLockTime bounds how long the directory lock may be held
// before lock.Lock force-releases it and logs a warning. Shorter in Testing
// builds so a wedged lock in a test fails fast instead of hanging the suite.
func maxDirectoryLockTime() time.Duration {
	return build.Select(build.Var{
		Standard: 30 * time.Second,
		Dev:      10 * time.Second,
		Testing:  2 * time.Second,
	}).(time.Duration)
}
