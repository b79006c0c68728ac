package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// verifierEntropy is the number of random bytes behind a code verifier.
	// 32 bytes encode to a 43 character base64url string.
	verifierEntropy = 32
	// stateEntropy is the number of random bytes behind a state value.
	stateEntropy = 16
)

// PKCEGenerator produces code verifiers, S256 challenges and state values.
type PKCEGenerator struct {
	random io.Reader
}

// NewPKCEGenerator returns a generator backed by crypto/rand.
func NewPKCEGenerator() *PKCEGenerator {
	return &PKCEGenerator{random: rand.Reader}
}

// GenerateCodeVerifier returns a base64url encoded (unpadded) random verifier.
func (g *PKCEGenerator) GenerateCodeVerifier() (string, error) {
	b, err := g.read(verifierEntropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeChallenge computes the S256 challenge for verifier.
func (g *PKCEGenerator) GenerateCodeChallenge(verifier string) (string, error) {
	if verifier == "" {
		return "", errors.New("verifier cannot be empty")
	}
	return challengeS256(verifier), nil
}

// GenerateState returns a hex encoded random value for CSRF correlation.
func (g *PKCEGenerator) GenerateState() (string, error) {
	b, err := g.read(stateEntropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateChallenge reports whether challenge was derived from verifier.
func (g *PKCEGenerator) ValidateChallenge(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(challengeS256(verifier))) == 1
}

func (g *PKCEGenerator) read(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return nil, err
	}
	return b, nil
}

func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
