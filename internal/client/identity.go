package client

import (
	"fmt"
	"math/rand"
	"net/url"
)

const anonymousPrefix = "anonymous-"

// Identity returns userID, or a fresh anonymous id when it is empty so the
// server can still label the connection.
func Identity(userID string, r *rand.Rand) string {
	if userID != "" {
		return userID
	}
	return anonymousPrefix + randID(r, 8)
}

func randID(r *rand.Rand, length int) string {
	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[r.Intn(len(charset))]
	}
	return string(b)
}

// Endpoint adds the userId query parameter to a ws:// or wss:// base URL.
func Endpoint(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	q := u.Query()
	q.Set("userId", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
