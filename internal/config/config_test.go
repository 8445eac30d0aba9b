package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-reconciler/internal/domain"
)

const baseYAML = `
server:
  host: localhost
  port: 8080
  grpc_port: 9090
database:
  host: localhost
  user: reconciler
  database: bookings
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestParse(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(baseYAML))
		require.NoError(t, err)

		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, 1000, cfg.Reconciliation.BatchLimit)
		assert.Equal(t, 4, cfg.Reconciliation.Workers)
		assert.Equal(t, 10*time.Minute, cfg.Reconciliation.RunTimeout)
		assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.ReconcileBalances)
		assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
		assert.Equal(t, "high", cfg.SendGrid.MinSeverity)

		p, err := cfg.ReconciliationPolicy()
		require.NoError(t, err)
		assert.True(t, p.Epsilon.Equal(domain.MustMoney("0.01")))
		assert.True(t, p.AutoCorrectThreshold.Equal(domain.MustMoney("0.01")))
		assert.True(t, p.Breakpoints.High.Equal(domain.MustMoney("100")))
	})

	t.Run("ReconciliationOverrides", func(t *testing.T) {
		yaml := baseYAML + `
reconciliation:
  auto_correct_threshold: "1.00"
  severity_breakpoints:
    low: "5"
    medium: "50"
    high: "500"
  run_timeout: 90s
  allow_negative_balance: true
`
		cfg, err := Parse([]byte(yaml))
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Reconciliation.RunTimeout)

		p, err := cfg.ReconciliationPolicy()
		require.NoError(t, err)
		assert.True(t, p.AutoCorrectThreshold.Equal(domain.MustMoney("1")))
		assert.Equal(t, domain.SeverityMedium, p.Severity(domain.MustMoney("20")))
		assert.True(t, p.AllowNegative)
	})

	t.Run("EnvOverride", func(t *testing.T) {
		t.Setenv("RECONCILE_AUTO_CORRECT_THRESHOLD", "0.50")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("DB_HOST", "db.internal")

		cfg, err := Parse([]byte(baseYAML))
		require.NoError(t, err)
		assert.Equal(t, "0.50", cfg.Reconciliation.AutoCorrectThreshold)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "db.internal", cfg.Database.Host)
	})

	t.Run("MemoryDriverNeedsNoDatabase", func(t *testing.T) {
		yaml := `
server:
  port: 8080
database:
  driver: memory
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`
		_, err := Parse([]byte(yaml))
		assert.NoError(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		cases := map[string]string{
			"ShortSecret":      "server: {port: 8080}\ndatabase: {driver: memory}\njwt: {secret: short}\n",
			"BadPort":          "server: {port: 0}\ndatabase: {driver: memory}\njwt: {secret: 0123456789abcdef0123456789abcdef}\n",
			"BadDecimal":       baseYAML + "reconciliation: {epsilon: abc}\n",
			"UnorderedBands":   baseYAML + "reconciliation: {severity_breakpoints: {low: '10', medium: '5', high: '100'}}\n",
			"UnknownSeverity":  baseYAML + "sendgrid: {min_severity: urgent}\n",
			"PlainCronSecret":  baseYAML + "cron: {secret_hash: hunter2}\n",
			"UnknownDriver":    "server: {port: 8080}\ndatabase: {driver: mysql}\njwt: {secret: 0123456789abcdef0123456789abcdef}\n",
			"MissingFromEmail": baseYAML + "sendgrid: {api_key: SG.x}\n",
		}
		for name, yaml := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Parse([]byte(yaml))
				assert.Error(t, err)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.GetServerAddress())
	assert.Equal(t, "postgres://reconciler:@localhost:5432/bookings?sslmode=disable", cfg.GetDatabaseConnectionString())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRouteSecurity(t *testing.T) {
	assert.Equal(t, SecurityPublic, RouteSecurity("healthz"))
	assert.Equal(t, SecurityCronOrAdmin, RouteSecurity("cron_reconcile_balances"))
	assert.Equal(t, SecurityAdmin, RouteSecurity("resolve_alert"))
	assert.Equal(t, SecurityAdmin, RouteSecurity("something_new"))
}
