package stars

import (
	"strings"

	"github.com/starslab/stars/build"
	"github.com/starslab/stars/modules"
)

// dispatchBuiltin executes one of the server's own commands, addressed to
// modules.ServerNodeName. Unknown built-ins yield a Malformed error reply to
// the sender.
func (r *Router) dispatchBuiltin(sender *Node, command, argument string) {
	switch command {
	case "listnodes":
		r.builtinListNodes(sender)
	case "gethostname":
		r.builtinGetHostname(sender)
	case "getversion":
		r.builtinGetVersion(sender)
	case "shutdownserver":
		r.builtinShutdown(sender)
	case "flgon":
		sender.SetVerbose(true)
	case "flgoff":
		sender.SetVerbose(false)
	default:
		r.reject(sender, modules.ErrMalformed)
	}
}

func (r *Router) builtinListNodes(sender *Node) {
	names := r.dir.Names()
	_ = sender.Write(modules.ServerNodeName, "listnodes", strings.Join(names, " "))
}

func (r *Router) builtinGetHostname(sender *Node) {
	_ = sender.Write(modules.ServerNodeName, "gethostname", sender.Host.Hostname)
}

func (r *Router) builtinGetVersion(sender *Node) {
	_ = sender.Write(modules.ServerNodeName, "getversion", build.Version)
}

// builtinShutdown initiates graceful shutdown iff sender's registered name
// matches shutdown_allow; otherwise it is a policy denial like any other
// command.
func (r *Router) builtinShutdown(sender *Node) {
	if !r.cfg.ShutdownAllowed(sender.Name) {
		r.reject(sender, modules.ErrPolicyDenied)
		return
	}
	r.log.WithField("node", sender.Name).Warn("shutdown requested")
	if r.onShutdown != nil {
		r.onShutdown()
	}
}
