package install

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// canonicalMessage builds the signed representation of a handshake:
// the query-encoded host, shop, and timestamp fields plus state and
// code when present, sorted alphabetically by key. The hmac and
// fingerprint fields are never part of the signed message.
func canonicalMessage(h Handshake) string {
	v := url.Values{}
	v.Set("host", h.Host)
	v.Set("shop", h.Shop)
	v.Set("timestamp", h.Timestamp)
	if h.State != "" {
		v.Set("state", h.State)
	}
	if h.Code != "" {
		v.Set("code", h.Code)
	}
	return v.Encode() // Encode sorts by key
}

// Sign computes the hex HMAC-SHA256 of the canonical handshake message.
func Sign(h Handshake, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalMessage(h)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the handshake HMAC and compares it in
// constant time against the supplied hex signature.
func VerifySignature(h Handshake, secret string) bool {
	supplied, err := hex.DecodeString(h.HMAC)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalMessage(h)))
	return hmac.Equal(mac.Sum(nil), supplied)
}
