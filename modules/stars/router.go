package stars

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/starslab/stars/modules"
)

// Router parses each line a registered node sends and dispatches it: to a
// built-in, to a broadcast pattern, to another registered peer, or to an
// error reply back at the sender. A Router is shared by every handler on a
// server; it holds no per-connection state.
type Router struct {
	dir     *Directory
	cfg     *ConfigSnapshot
	log     *logrus.Logger
	onShutdown func()
}

// NewRouter builds a Router over the given directory and configuration.
// onShutdown is invoked from the goroutine of the handler that processes a
// permitted shutdownserver command, once per such command, to begin
// graceful drain.
func NewRouter(dir *Directory, cfg *ConfigSnapshot, log *logrus.Logger, onShutdown func()) *Router {
	return &Router{dir: dir, cfg: cfg, log: log, onShutdown: onShutdown}
}

// Route processes one already-trimmed, non-empty line sent by sender.
func (r *Router) Route(sender *Node, line string) {
	destRaw, command, argument, ok := tokenize(line)
	if !ok {
		r.reject(sender, modules.ErrMalformed)
		return
	}

	dest := r.cfg.ResolveAlias(destRaw)

	if !r.cfg.CommandAllowed(command) {
		r.reject(sender, modules.ErrPolicyDenied)
		return
	}

	switch {
	case dest == modules.ServerNodeName:
		r.dispatchBuiltin(sender, command, argument)
	case strings.HasPrefix(dest, string(modules.BroadcastSigil)):
		pattern, err := CompilePattern(strings.TrimPrefix(dest, string(modules.BroadcastSigil)))
		if err != nil {
			r.reject(sender, modules.ErrMalformed)
			return
		}
		r.dir.Broadcast(pattern, sender.Name, command, argument, sender.Name)
	default:
		r.dispatchToPeer(sender, dest, command, argument)
	}
}

// tokenize splits line into destination, command, and argument per section
// 4.3: whitespace-run-separated, first token destination, second command,
// remainder (rejoined with single spaces) the argument. Fewer than two
// tokens is malformed.
func tokenize(line string) (dest, command, argument string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", "", false
	}
	return fields[0], fields[1], strings.Join(fields[2:], " "), true
}

func (r *Router) dispatchToPeer(sender *Node, dest, command, argument string) {
	peer, found := r.dir.Lookup(dest)
	if !found {
		r.reject(sender, modules.ErrDestinationUnknown)
		return
	}
	if err := peer.Write(sender.Name, command, argument); err != nil {
		r.log.WithField("peer", peer.Name).Warn("peer write failed, terminating")
		peer.Terminate()
	}
}

// reject sends the stable `System Er. <reason>` line to sender. Per section
// 7, this never propagates further than the sender's own connection.
func (r *Router) reject(sender *Node, err error) {
	_ = sender.Write(modules.ServerNodeName, modules.ErrorCommand, modules.ReasonToken(err))
}
