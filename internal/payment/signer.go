package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
)

// Signer computes and verifies the Base64 HMAC-SHA256 signature the Payrexx
// API family expects over a canonical form-encoded body.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the Base64-encoded HMAC-SHA256 digest of payload.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignForm canonicalizes v and signs it. url.Values.Encode sorts keys
// lexicographically and encodes spaces as '+', which is byte-identical to
// the RFC1738 query string the provider's verifier reproduces.
func (s *Signer) SignForm(v url.Values) (body string, signature string) {
	body = v.Encode()
	return body, s.Sign([]byte(body))
}

// Verify recomputes the signature and compares in constant time.
func (s *Signer) Verify(payload []byte, signature string) bool {
	expected := s.Sign(payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
