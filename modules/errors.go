// Package modules holds the types and error kinds shared between the stars
// server's core engine (modules/stars) and its external collaborators (the
// CLI, the INI loader) without either side depending on the other's
// internals.
package modules

import "github.com/NebulousLabs/errors"

// Error kinds for every failure the server reports, either to its own log or
// across the wire as an `Er.` reply. Each is a sentinel; callers compose it
// with context via errors.Extend and test for it via errors.Contains.
var (
	// ErrConfigLoad indicates a malformed pattern file or a missing required
	// configuration file. Fatal at startup.
	ErrConfigLoad = errors.New("configuration load error")

	// ErrBind indicates the listener could not be opened. Fatal at startup.
	ErrBind = errors.New("listener bind error")

	// ErrHostRejected indicates a connecting peer's host matched no pattern
	// in host_allow (optionally narrowed by a per-node allow file).
	ErrHostRejected = errors.New("host rejected")

	// ErrNameInvalid indicates a candidate node name failed syntactic
	// validation (empty, contains whitespace, or begins with a reserved
	// character).
	ErrNameInvalid = errors.New("invalid node name")

	// ErrNameInUse indicates a candidate node name collided with a live
	// registration that the connecting peer has no right to evict.
	ErrNameInUse = errors.New("name in use")

	// ErrAuthFailed indicates the challenge-response digest did not match.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPolicyDenied indicates a command matched command_deny, or failed to
	// match a non-empty command_allow.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrDestinationUnknown indicates a message's destination does not name
	// a registered node, alias, broadcast pattern, or the server itself.
	ErrDestinationUnknown = errors.New("destination unknown")

	// ErrMalformed indicates a wire message could not be tokenized into at
	// least a destination and a command.
	ErrMalformed = errors.New("malformed message")

	// ErrPeerWriteFailed indicates a write to a peer's socket failed. Never
	// surfaced to the sender; only the failing peer is terminated.
	ErrPeerWriteFailed = errors.New("peer write failed")

	// ErrIoTransient indicates a transient read/write failure unrelated to
	// the above (EOF, reset connection, read-timeout elapsed).
	ErrIoTransient = errors.New("transient io error")
)

// ReasonToken maps an error produced by this package to the stable `Er.`
// reason token sent back to a client, per the wire protocol. Unrecognized
// errors map to the generic "Error" token rather than leaking Go error text
// to the wire.
func ReasonToken(err error) string {
	switch {
	case errors.Contains(err, ErrHostRejected):
		return "HostRejected"
	case errors.Contains(err, ErrNameInvalid):
		return "NameInvalid"
	case errors.Contains(err, ErrNameInUse):
		return "NameInUse"
	case errors.Contains(err, ErrAuthFailed):
		return "AuthFailed"
	case errors.Contains(err, ErrPolicyDenied):
		return "PolicyDenied"
	case errors.Contains(err, ErrDestinationUnknown):
		return "DestinationUnknown"
	case errors.Contains(err, ErrMalformed):
		return "Malformed"
	case errors.Contains(err, ErrPeerWriteFailed):
		return "PeerWriteFailed"
	case errors.Contains(err, ErrIoTransient):
		return "IoTransient"
	default:
		return "Error"
	}
}
