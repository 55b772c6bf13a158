package stars

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChallengeVerify(t *testing.T) {
	secret := []byte("server-secret")
	c := newChallenge()

	response := c.expectedResponse(secret, 0x1234)
	assert.True(t, c.verify(secret, 0x1234, response))
	assert.False(t, c.verify(secret, 0x1235, response), "response is bound to the node key")
	assert.False(t, c.verify([]byte("wrong-secret"), 0x1234, response))
	assert.False(t, c.verify(secret, 0x1234, "not-the-right-digest"))
}

func TestChallengeNonceIsRandom(t *testing.T) {
	a := newChallenge()
	b := newChallenge()
	assert.NotEqual(t, a.nonceHex(), b.nonceHex())
	assert.Len(t, a.nonce, challengeLength)
}
