package auth

import "crypto/subtle"

// APIKeyMatches compares a presented webhook key with the configured one in
// constant time. An empty configured key never matches.
func APIKeyMatches(presented, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
