// Package cmd implements the command-line entry points: interactive login,
// manual token exchange, status reporting and the serve mode that hosts the
// MCP and management HTTP surface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	kiteauth "github.com/router-for-me/KiteMCP/internal/auth/kite"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/session"
)

// LoginOptions carries the flag-controlled behavior of the login flow.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
	// Force discards a still-valid token and runs a fresh login.
	Force bool
}

// DoLogin runs the automated login flow: it binds the callback listener,
// opens (or prints) the authorization URL and waits for the redirect. The
// return value is the process exit code.
func DoLogin(cfg *config.Config, options *LoginOptions) int {
	if options == nil {
		options = &LoginOptions{}
	}

	manager, err := session.NewManager(cfg, kite.NewClient(cfg, nil))
	if err != nil {
		log.Errorf("login: %v", err)
		return 1
	}
	manager.SetBrowserLaunch(!options.NoBrowser)

	timeout := cfg.Callback.WaitTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout+30*time.Second)
	defer cancel()

	record, err := manager.AuthenticateFullyAutomated(ctx, timeout, options.Force)
	if err != nil {
		fmt.Println(kiteauth.GetUserFriendlyMessage(err))
		var authErr *kiteauth.AuthenticationError
		if errors.As(err, &authErr) && authErr.Type == kiteauth.ErrNoPortAvailable.Type {
			return kiteauth.ErrNoPortAvailable.Code
		}
		return 1
	}

	fmt.Printf("Authentication successful. Token valid until %s.\n", record.ExpiresAt.Format(time.RFC1123))
	return 0
}
