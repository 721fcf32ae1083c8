package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Host: "smtp.example.com"},
		{Host: "smtp.example.com", Username: "u"},
		{Username: "u", Password: "p"},
		{Host: "smtp.example.com", Username: "u", Password: "p"}, // no sender address
	} {
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrNotConfigured, "cfg: %+v", cfg)
	}
}

func TestNewDefaultsPort(t *testing.T) {
	m, err := New(Config{
		Host:     "smtp.example.com",
		Username: "u",
		Password: "p",
		From:     "no-reply@lumoflow.app",
		FromName: "LumoFlow",
	})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
}
