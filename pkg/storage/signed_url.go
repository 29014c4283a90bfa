package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedFile is the metadata carried by a download token.
type SignedFile struct {
	ID        string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates download tokens of the form
// id.expiry.path.signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token referencing id and the stored file path.
func (s *SignedURLSigner) Generate(id, relPath string) (string, time.Time, error) {
	if id == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("id and path required")
	}
	if strings.Contains(id, ".") {
		return "", time.Time{}, fmt.Errorf("id must not contain dots")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{id, exp, encodedPath, s.sign(id, exp, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token. Expired tokens fail unless allowExpired is set.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (SignedFile, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SignedFile{}, fmt.Errorf("invalid token format")
	}
	id, exp, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(id, exp, encodedPath)), []byte(signature)) {
		return SignedFile{}, fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return SignedFile{}, fmt.Errorf("invalid token expiry")
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return SignedFile{}, fmt.Errorf("decode path: %w", err)
	}
	file := SignedFile{ID: id, Path: string(rawPath), ExpiresAt: time.Unix(expUnix, 0)}
	if !allowExpired && s.now().After(file.ExpiresAt) {
		return SignedFile{}, fmt.Errorf("token expired")
	}
	return file, nil
}

func (s *SignedURLSigner) sign(id, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(id + "|" + exp + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
