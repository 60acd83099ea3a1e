package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParse(t *testing.T) {
	signed, err := Build("secret", "admin", time.Hour)
	require.NoError(t, err)

	username, err := Parse("secret", signed)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestParse_WrongSecret(t *testing.T) {
	signed, err := Build("secret", "admin", time.Hour)
	require.NoError(t, err)

	_, err = Parse("other-secret", signed)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	signed, err := Build("secret", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = Parse("secret", signed)
	assert.Error(t, err)
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse("secret", "not.a.token")
	assert.Error(t, err)
}
