package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phessophissy/POSVault/internal/governance"
	"github.com/phessophissy/POSVault/internal/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseArgs_Defaults(t *testing.T) {
	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8443", opts.Addr)
	assert.Equal(t, "owner", opts.Owner)
	assert.Equal(t, uint64(144), opts.CycleLength)
	assert.Equal(t, governance.WeightSnapshot, opts.WeightPolicy)
	assert.Equal(t, 10*time.Second, opts.Tick)
}

func TestParseArgs_Precedence(t *testing.T) {
	path := writeFile(t, "posvault.yaml", `
address: file:1
database_dsn: postgres://file
owner: treasury
tick: 2s
voting_period: 50
weight_policy: live
`)
	t.Setenv("POSVAULT_DATABASE_DSN", "postgres://env")

	opts, err := ParseArgs([]string{"-c", path, "-a", "flag:2"})
	require.NoError(t, err)
	assert.Equal(t, "flag:2", opts.Addr)
	assert.Equal(t, "postgres://env", opts.DatabaseDSN)
	assert.Equal(t, "treasury", opts.Owner)
	assert.Equal(t, 2*time.Second, opts.Tick)
	assert.Equal(t, uint64(50), opts.VotingPeriod)
	assert.Equal(t, governance.WeightLive, opts.WeightPolicy)
}

func TestParseArgs_JSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"address": "json:3", "quorum_percent": 25}`)

	opts, err := ParseArgs([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "json:3", opts.Addr)
	assert.Equal(t, uint64(25), opts.QuorumPercent)
}

func TestParseArgs_ConfigPathFromEnv(t *testing.T) {
	path := writeFile(t, "env.yaml", "owner: from-env-file\n")
	t.Setenv("POSVAULT_CONFIG", path)

	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", opts.Owner)
}

func TestParseArgs_Errors(t *testing.T) {
	_, err := ParseArgs([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err, "explicit config file must exist")

	bad := writeFile(t, "bad.yaml", "address: [unterminated\n")
	_, err = ParseArgs([]string{"-c", bad})
	assert.Error(t, err)

	_, err = ParseArgs([]string{"-unknown"})
	assert.Error(t, err)

	t.Setenv("POSVAULT_WEIGHT_POLICY", "bogus")
	_, err = ParseArgs(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"no address", func(o *Options) { o.Addr = "" }},
		{"no owner", func(o *Options) { o.Owner = "" }},
		{"zero tick", func(o *Options) { o.Tick = 0 }},
		{"zero cycle", func(o *Options) { o.CycleLength = 0 }},
		{"rate above cap", func(o *Options) { o.InitialRewardRate = o.MaxRewardRate + 1 }},
		{"zero reconcile", func(o *Options) { o.ReconcileInterval = 0 }},
		{"quorum above 100", func(o *Options) { o.QuorumPercent = 101 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Default()
			tc.mutate(o)
			assert.Error(t, o.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestEngineOptions(t *testing.T) {
	o := Default()
	o.Owner = "treasury"
	o.CycleLength = 10
	o.MaxRewardRate = 500
	o.InitialRewardRate = 50
	o.WeightPolicy = governance.WeightLive

	eo := o.EngineOptions()
	assert.Equal(t, models.Principal("treasury"), eo.Owner)
	assert.Equal(t, uint64(10), eo.Vault.CycleLength)
	assert.Equal(t, uint32(500), eo.Vault.MaxRewardRateBps)
	assert.Equal(t, uint32(500), eo.Governance.MaxRewardRateBps)
	assert.Equal(t, uint32(50), eo.InitialRewardRate)
	assert.Equal(t, governance.WeightLive, eo.Governance.Weight)
}
