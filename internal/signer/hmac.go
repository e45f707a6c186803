// Package signer computes and verifies the message authentication codes
// providers put on requests and webhooks.
package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

func HMACSHA256Hex(key string, msg []byte) string {
	return sum(sha256.New, key, msg)
}

func HMACSHA1Hex(key string, msg []byte) string {
	return sum(sha1.New, key, msg)
}

func sum(h func() hash.Hash, key string, msg []byte) string {
	mac := hmac.New(h, []byte(key))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two signatures in constant time. An empty signature never matches.
func Equal(expected, got string) bool {
	if got == "" || expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
