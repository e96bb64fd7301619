package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	kiteauth "github.com/router-for-me/KiteMCP/internal/auth/kite"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/session"
)

// DoExchange completes a login manually from a pasted request token or the
// full callback redirect URL. It is the path for machines where no browser
// or callback listener can run. The return value is the process exit code.
func DoExchange(cfg *config.Config, raw string) int {
	token, err := kiteauth.ParseRequestToken(raw)
	if err != nil {
		fmt.Printf("Could not extract a request token: %v\n", err)
		fmt.Println("Paste either the token itself or the full URL you were redirected to after login.")
		return 1
	}

	manager, err := session.NewManager(cfg, kite.NewClient(cfg, nil))
	if err != nil {
		log.Errorf("exchange: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = manager.ExchangeRequestToken(ctx, token); err != nil {
		fmt.Println(kiteauth.GetUserFriendlyMessage(err))
		return 1
	}

	st := manager.TokenStatus()
	fmt.Printf("Authentication successful. %s\n", st.Message)
	return 0
}
