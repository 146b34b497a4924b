package devices

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Request is a transient approval request from an unauthenticated device
// session. At most one pending request exists per session; it is removed
// on approve, decline or session close.
type Request struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Addr      string    `json:"addr"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func newRequest(sessionID, addr, name string) *Request {
	return &Request{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Addr:      addr,
		Name:      name,
		CreatedAt: time.Now(),
	}
}

const (
	accessTokenLength  = 32
	accessTokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// generateAccessToken mints the per-device bearer secret issued at
// approval time: 32 alphanumeric characters from crypto/rand.
func generateAccessToken() (string, error) {
	token := make([]byte, accessTokenLength)
	max := big.NewInt(int64(len(accessTokenCharset)))
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		token[i] = accessTokenCharset[n.Int64()]
	}
	return string(token), nil
}
