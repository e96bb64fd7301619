package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/session"
)

// DoStatus prints the persisted token status without probing the broker.
// It returns 0 when a locally valid token is present and 1 otherwise, so
// scripts can gate on `kite-mcp --status`.
func DoStatus(cfg *config.Config) int {
	manager, err := session.NewManager(cfg, kite.NewClient(cfg, nil))
	if err != nil {
		log.Errorf("status: %v", err)
		return 1
	}

	st := manager.TokenStatus()
	fmt.Printf("Status:  %s\n", st.Status)
	fmt.Printf("Detail:  %s\n", st.Message)
	if st.GeneratedAt != nil {
		fmt.Printf("Issued:  %s\n", st.GeneratedAt.Format(time.RFC1123))
	}
	if st.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", st.ExpiresAt.Format(time.RFC1123))
	}

	if st.Status == session.StatusValid {
		return 0
	}
	return 1
}
