package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", EnvDevelopment)
	t.Setenv("INSTITUTION_EMAIL_DOMAIN", "School.EDU")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 62, cfg.Library.MaxLoanDays)
	assert.Equal(t, 5, cfg.Library.StatsLimit)
	assert.Equal(t, "@school.edu", cfg.Library.InstitutionDomain)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StatsTTL)
	assert.Equal(t, "local", cfg.Storage.Driver)
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Env:     EnvProduction,
		JWT:     JWTConfig{Secret: defaultJWTSecret},
		Library: LibraryConfig{MaxLoanDays: 62, InstitutionDomain: "@school.edu"},
	}
	require.Error(t, cfg.Validate())

	cfg.JWT.Secret = "a-real-secret"
	require.Error(t, cfg.Validate(), "admin hash still missing")

	cfg.Library.AdminPasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	require.NoError(t, cfg.Validate())
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
