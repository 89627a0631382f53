package spaceknow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
)

// LoadOrAuthenticate sets the token cached in tokenFile, or authenticates and caches the new token.
func (c *Client) LoadOrAuthenticate(ctx context.Context, tokenFile string, credentials Credentials) error {
	data, err := os.ReadFile(tokenFile)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			c.SetToken(token)
			return nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not read token file: %w", err)
	}

	log.Printf("no cached token in %s, authenticating", tokenFile)
	token, err := c.Authenticate(ctx, credentials)
	if err != nil {
		return err
	}
	if err = os.WriteFile(tokenFile, []byte(token.IDToken), 0o600); err != nil {
		return fmt.Errorf("could not cache token: %w", err)
	}
	return nil
}
