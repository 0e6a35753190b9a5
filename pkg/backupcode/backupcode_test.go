package backupcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-2fa/pkg/errors"
)

func TestGenerate(t *testing.T) {
	codes, err := Generate(DefaultCount)
	require.NoError(t, err)
	require.Len(t, codes, DefaultCount)

	seen := make(map[string]bool)
	for _, c := range codes {
		assert.True(t, ValidateFormat(c.Value), "code %q should match [A-Z0-9]{8}", c.Value)
		assert.False(t, c.Used)
		assert.Nil(t, c.UsedAt)
		assert.False(t, seen[c.Value], "codes within one set should be unique")
		seen[c.Value] = true
	}
}

func TestGenerate_InvalidCount(t *testing.T) {
	_, err := Generate(0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABCD1234", true},
		{"ZZZZZZZZ", true},
		{"00000000", true},
		{"abcd1234", false}, // lowercase
		{"ABCD123", false},  // too short
		{"ABCD12345", false},
		{"ABCD-234", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateFormat(tt.code), "code %q", tt.code)
	}
}

func TestConsume(t *testing.T) {
	now := time.Now().UTC()
	codes, err := Generate(3)
	require.NoError(t, err)

	err = Consume(codes, codes[1].Value, now)
	require.NoError(t, err)
	assert.True(t, codes[1].Used)
	require.NotNil(t, codes[1].UsedAt)
	assert.Equal(t, now, *codes[1].UsedAt)

	// the other codes are untouched
	assert.False(t, codes[0].Used)
	assert.False(t, codes[2].Used)
}

func TestConsume_Twice(t *testing.T) {
	now := time.Now().UTC()
	codes, err := Generate(2)
	require.NoError(t, err)

	require.NoError(t, Consume(codes, codes[0].Value, now))

	err = Consume(codes, codes[0].Value, now.Add(time.Minute))
	assert.True(t, errors.IsCode(err, errors.ErrCodeCodeAlreadyUsed))

	// the first UsedAt stamp is preserved
	assert.Equal(t, now, *codes[0].UsedAt)
}

func TestConsume_NotFound(t *testing.T) {
	codes, err := Generate(2)
	require.NoError(t, err)

	err = Consume(codes, "NOTACODE", time.Now().UTC())
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCode))
}
