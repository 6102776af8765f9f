package validation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00b\x07c  "))
	assert.Equal(t, "a\tb", SanitizeString("a\tb"))
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "analyst_1", false},
		{"email", "ops@example.com", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"spaces", "bad name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Str0ng!pass"))
	assert.Error(t, ValidatePassword("Sh0rt!"))
	assert.Error(t, ValidatePassword("nouppercase1!"))
	assert.Error(t, ValidatePassword("NOLOWERCASE1!"))
	assert.Error(t, ValidatePassword("NoNumbers!!"))
	assert.Error(t, ValidatePassword("NoSpecial123"))
}

func TestParseCredentials(t *testing.T) {
	user, pass, err := ParseCredentials("admin:Adm1n:pass!")
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "Adm1n:pass!", pass)

	_, _, err = ParseCredentials("admin")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = ParseCredentials("admin:weak")
	assert.Error(t, err)
}

func TestValidateRunID(t *testing.T) {
	assert.NoError(t, ValidateRunID("0b6f1c2e-7d59-4c4f-9b3a-3c1f4a2b9e10"))
	assert.ErrorIs(t, ValidateRunID("run-1"), ErrInvalidInput)
}

func TestSanitizePaths(t *testing.T) {
	root := t.TempDir()

	paths, err := SanitizePaths(root, []string{"a.log", "sub/../b.log", filepath.Join(root, "c.log")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.log"),
		filepath.Join(root, "b.log"),
		filepath.Join(root, "c.log"),
	}, paths)

	_, err = SanitizePaths(root, []string{"../escape.log"})
	assert.ErrorIs(t, err, ErrPathEscapes)

	_, err = SanitizePaths(root, []string{"/etc/passwd"})
	assert.ErrorIs(t, err, ErrPathEscapes)

	_, err = SanitizePaths(root, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = SanitizePaths(root, []string{"  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
