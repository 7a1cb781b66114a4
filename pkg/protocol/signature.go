package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the body signature on signed send requests.
const SignatureHeader = "X-Signature"

// SignBody returns hex(HMAC-SHA256(body, secret)).
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
