package stars

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"

	"github.com/starslab/stars/crypto"
)

// challenge is the server's half of the AwaitName -> Challenged transition:
// a random nonce the connecting node must fold into a digest it can only
// produce if it holds the shared secret from keydir/server.key.
type challenge struct {
	nonce []byte
}

// newChallenge mints a fresh random nonce.
func newChallenge() challenge {
	return challenge{nonce: crypto.RandBytes(challengeLength)}
}

// expectedResponse computes the digest a node must return to prove
// knowledge of secret for this challenge and the node key minted for its
// connection: HMAC-SHA256(secret, nonce || nodeKey), hex-encoded. Including
// the node key in the MAC input binds a captured response to a single
// connection, making cross-connection replay useless.
func (c challenge) expectedResponse(secret []byte, nodeKey uint16) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(c.nonce)
	var keyBytes [2]byte
	binary.BigEndian.PutUint16(keyBytes[:], nodeKey)
	mac.Write(keyBytes[:])
	return hex.EncodeToString(mac.Sum(nil))
}

// verify reports whether response is the correct digest for this challenge,
// secret, and nodeKey, comparing in constant time to avoid leaking timing
// information about the correct digest.
func (c challenge) verify(secret []byte, nodeKey uint16, response string) bool {
	want := c.expectedResponse(secret, nodeKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(response)) == 1
}

// nonceHex returns the nonce as sent over the wire in the challenge line.
func (c challenge) nonceHex() string {
	return hex.EncodeToString(c.nonce)
}
