package lifecycle

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeCharset avoids lowercase so codes survive being read aloud.
const CodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator returns a candidate join code. Candidates may collide; the
// caller checks them against the store.
type CodeGenerator func() (string, error)

func RandomCode(length int) CodeGenerator {
	limit := big.NewInt(int64(len(CodeCharset)))

	return func() (string, error) {
		code := make([]byte, length)
		for i := range code {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", fmt.Errorf("failed to read random: %w", err)
			}
			code[i] = CodeCharset[n.Int64()]
		}

		return string(code), nil
	}
}
