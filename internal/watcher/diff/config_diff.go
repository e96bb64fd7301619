// Package diff computes human-readable change summaries between two
// configuration snapshots for hot-reload logging.
package diff

import (
	"fmt"

	"github.com/router-for-me/KiteMCP/internal/config"
)

// BuildConfigChangeDetails returns one line per materially changed field
// between oldCfg and newCfg. Secret values are never included: only the fact
// that they changed is reported.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var details []string
	add := func(format string, args ...any) {
		details = append(details, fmt.Sprintf(format, args...))
	}

	if oldCfg.Host != newCfg.Host {
		add("host: %q -> %q", oldCfg.Host, newCfg.Host)
	}
	if oldCfg.Port != newCfg.Port {
		add("port: %d -> %d", oldCfg.Port, newCfg.Port)
	}
	if oldCfg.ProxyURL != newCfg.ProxyURL {
		// Proxy URLs can embed credentials, so values stay out of the logs.
		add("proxy-url changed")
	}
	if oldCfg.ManagementKey != newCfg.ManagementKey {
		add("management-key changed")
	}
	if oldCfg.Debug != newCfg.Debug {
		add("debug: %t -> %t", oldCfg.Debug, newCfg.Debug)
	}
	if oldCfg.LoggingToFile != newCfg.LoggingToFile {
		add("logging-to-file: %t -> %t", oldCfg.LoggingToFile, newCfg.LoggingToFile)
	}
	if oldCfg.RequestLog != newCfg.RequestLog {
		add("request-log: %t -> %t", oldCfg.RequestLog, newCfg.RequestLog)
	}

	if oldCfg.Kite.APIKey != newCfg.Kite.APIKey {
		add("kite.api-key changed")
	}
	if oldCfg.Kite.APISecret != newCfg.Kite.APISecret {
		add("kite.api-secret changed")
	}
	if oldCfg.Kite.RedirectURL != newCfg.Kite.RedirectURL {
		add("kite.redirect-url: %q -> %q", oldCfg.Kite.RedirectURL, newCfg.Kite.RedirectURL)
	}
	if oldCfg.Kite.BaseURL != newCfg.Kite.BaseURL {
		add("kite.base-url: %q -> %q", oldCfg.Kite.BaseURL, newCfg.Kite.BaseURL)
	}
	if oldCfg.Kite.LoginBaseURL != newCfg.Kite.LoginBaseURL {
		add("kite.login-base-url: %q -> %q", oldCfg.Kite.LoginBaseURL, newCfg.Kite.LoginBaseURL)
	}
	if oldCfg.Kite.TokenFile != newCfg.Kite.TokenFile {
		add("kite.token-file: %q -> %q", oldCfg.Kite.TokenFile, newCfg.Kite.TokenFile)
	}
	if oldCfg.Kite.TokenValidityHours != newCfg.Kite.TokenValidityHours {
		add("kite.token-validity-hours: %d -> %d", oldCfg.Kite.TokenValidityHours, newCfg.Kite.TokenValidityHours)
	}
	if oldCfg.Kite.RateLimitPerSec != newCfg.Kite.RateLimitPerSec {
		add("kite.rate-limit-per-sec: %d -> %d", oldCfg.Kite.RateLimitPerSec, newCfg.Kite.RateLimitPerSec)
	}

	if oldCfg.Callback.StartPort != newCfg.Callback.StartPort {
		add("callback.start-port: %d -> %d", oldCfg.Callback.StartPort, newCfg.Callback.StartPort)
	}
	if oldCfg.Callback.PortAttempts != newCfg.Callback.PortAttempts {
		add("callback.port-attempts: %d -> %d", oldCfg.Callback.PortAttempts, newCfg.Callback.PortAttempts)
	}
	if oldCfg.Callback.WaitTimeoutSeconds != newCfg.Callback.WaitTimeoutSeconds {
		add("callback.wait-timeout-seconds: %d -> %d", oldCfg.Callback.WaitTimeoutSeconds, newCfg.Callback.WaitTimeoutSeconds)
	}

	if oldCfg.Orders.ConfirmationDelaySeconds != newCfg.Orders.ConfirmationDelaySeconds {
		add("orders.confirmation-delay-seconds: %d -> %d", oldCfg.Orders.ConfirmationDelaySeconds, newCfg.Orders.ConfirmationDelaySeconds)
	}
	if oldCfg.Orders.JournalFile != newCfg.Orders.JournalFile {
		add("orders.journal-file: %q -> %q", oldCfg.Orders.JournalFile, newCfg.Orders.JournalFile)
	}

	return details
}
