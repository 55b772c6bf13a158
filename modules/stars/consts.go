package stars

import "time"

const (
	// defaultPort is the TCP port the acceptor binds when no --port flag and
	// no starsport config key are supplied.
	defaultPort = 6057

	// serverID identifies this implementation in the connect banner:
	// "<serverID> <nodekey-hex>\n".
	serverID = "STARS"

	// challengeLength is the size, in bytes, of the random nonce sent as
	// part of the authentication challenge.
	challengeLength = 16

	// maxLineLength bounds a single wire message to guard against a
	// misbehaving or hostile peer sending an unbounded line.
	maxLineLength = 1 << 16

	// acceptRetryDelay is how long the acceptor sleeps after a transient
	// Accept() error before retrying, instead of busy-looping on a
	// recoverable I/O error.
	acceptRetryDelay = 50 * time.Millisecond

	// evictTimeout bounds how long Directory.Evict waits for the displaced
	// handler's own cleanup to finish before giving up on synchronization
	// and letting the caller proceed anyway.
	evictTimeout = 5 * time.Second
)

// secretFileName is the name of the file inside --keydir / starskey that
// holds the server's challenge secret.
const secretFileName = "server.key"
