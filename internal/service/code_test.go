package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftledger/internal/errors"
)

func TestCodeGenerator_Generate(t *testing.T) {
	tests := []struct {
		length   int
		expected int
	}{
		{length: 0, expected: defaultCodeLength},
		{length: 7, expected: defaultCodeLength},
		{length: 8, expected: 8},
		{length: 32, expected: 32},
		{length: 33, expected: defaultCodeLength},
	}
	for _, tt := range tests {
		code, err := NewCodeGenerator(tt.length).Generate()
		require.NoError(t, err)
		assert.Len(t, code, tt.expected)
		assert.Regexp(t, `^[A-Z0-9]+$`, code)
	}
}

func TestCodeGenerator_GenerateUnique(t *testing.T) {
	gen := NewCodeGenerator(0)
	ctx := context.Background()

	calls := 0
	code, err := gen.GenerateUnique(ctx, func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Len(t, code, defaultCodeLength)
	assert.Equal(t, 3, calls)

	_, err = gen.GenerateUnique(ctx, func(context.Context, string) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, errors.ErrCodeSpaceExhausted)

	_, err = gen.GenerateUnique(ctx, func(context.Context, string) (bool, error) { return false, assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewAuthorizationCode(t *testing.T) {
	a, b := NewAuthorizationCode(), NewAuthorizationCode()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "GC-"))
	assert.Len(t, a, 35)
	assert.Equal(t, strings.ToUpper(a), a)
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "abcd-efgh-1234-5678", expected: "ABCDEFGH12345678"},
		{input: " ABCD EFGH 1234 5678 ", expected: "ABCDEFGH12345678"},
		{input: "short", wantErr: true},
		{input: "ABCDEFGH!2345678", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			code, err := NormalizeCode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "****5678", MaskCode("ABCDEFGH12345678"))
	assert.Equal(t, "****", MaskCode("AB"))
}
