package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"giftledger/internal/errors"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultCodeLength = 16
	maxCodeAttempts   = 10
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8,32}$`)

// CodeGenerator mints redemption codes and authorization codes.
type CodeGenerator struct {
	length int
}

// NewCodeGenerator creates a generator for codes of the given length.
func NewCodeGenerator(length int) *CodeGenerator {
	if length < 8 || length > 32 {
		length = defaultCodeLength
	}
	return &CodeGenerator{length: length}
}

// Generate returns a random uppercase alphanumeric code.
func (g *CodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// GenerateUnique retries Generate until exists reports the code as free.
func (g *CodeGenerator) GenerateUnique(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.ErrCodeSpaceExhausted
}

// NewAuthorizationCode returns a fresh code linking an authorize entry to its follow-ups.
func NewAuthorizationCode() string {
	return "GC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NormalizeCode strips spaces and dashes and upper-cases a customer-entered code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(code), " ", ""), "-", ""))
	if !codePattern.MatchString(code) {
		return "", errors.ErrInvalidCode
	}
	return code, nil
}

// MaskCode masks a code, showing only the last 4 characters.
func MaskCode(code string) string {
	if len(code) < 4 {
		return "****"
	}
	return "****" + code[len(code)-4:]
}
