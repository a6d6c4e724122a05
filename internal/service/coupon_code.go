package service

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// CodeLength is the number of characters of a coupon code
	CodeLength = 6

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// largest multiple of len(codeAlphabet) below 256, for unbiased sampling
	codeRejectAbove = 252
)

// CodeGenerator produces candidate coupon codes
type CodeGenerator func() (string, error)

// GenerateCode returns a random uppercase base-36 code of CodeLength characters
func GenerateCode() (string, error) {
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)

	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= codeRejectAbove {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}

	return string(out), nil
}

// NormalizeCode makes a typed code comparable with stored codes
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
