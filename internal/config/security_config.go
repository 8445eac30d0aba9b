// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic      SecurityLevel = iota // No authentication
	SecurityAdmin                            // Admin access token required
	SecurityCronOrAdmin                      // Cron secret or admin access token
)

// EndpointSecurityConfig maps named routes to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Health - Public
	"healthz": SecurityPublic,

	// Reconciliation - Admin
	"validate_booking":  SecurityAdmin,
	"reconcile_booking": SecurityAdmin,
	"list_logs":         SecurityAdmin,
	"list_reports":      SecurityAdmin,
	"latest_report":     SecurityAdmin,
	"generate_report":   SecurityAdmin,

	// Alerts - Admin
	"list_alerts":       SecurityAdmin,
	"alert_summary":     SecurityAdmin,
	"acknowledge_alert": SecurityAdmin,
	"resolve_alert":     SecurityAdmin,

	// Payouts - Admin
	"list_payouts":  SecurityAdmin,
	"record_payout": SecurityAdmin,
	"update_payout": SecurityAdmin,

	// Scheduler trigger - Cron secret or Admin
	"cron_reconcile_balances": SecurityCronOrAdmin,
}

// RouteSecurity returns the level for a named route. Unknown routes require
// an admin token.
func RouteSecurity(name string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[name]; ok {
		return level
	}
	return SecurityAdmin
}
