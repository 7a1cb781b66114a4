package auth

import (
	"crypto/hmac"
	"errors"

	"github.com/jsjperu/wha-relay/pkg/protocol"
)

// ErrBadSignature is returned when a request signature is missing or wrong.
var ErrBadSignature = errors.New("invalid request signature")

// VerifySignature checks sig against the body. An empty secret disables the check.
func VerifySignature(secret string, body []byte, sig string) error {
	if secret == "" {
		return nil
	}
	if sig == "" {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(protocol.SignBody(secret, body))) {
		return ErrBadSignature
	}
	return nil
}
