package report

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeCredentials decodes a base64 "username:password" API key.
func DecodeCredentials(apiKey string) (Credentials, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Credentials{}, ErrMissingCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(apiKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode api key: %w", ErrMissingCredentials)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" || pass == "" {
		return Credentials{}, fmt.Errorf("api key must encode username:password: %w", ErrMissingCredentials)
	}
	return Credentials{Username: user, Password: pass}, nil
}
