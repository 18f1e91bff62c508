package pgwire

import "crypto/rand"

// printableAlphabet is used for statement-name generation. It deliberately excludes characters PostgreSQL
// would need escaping in an identifier context (no quotes, backslashes,
// or whitespace).
const printableAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomPrintable(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = printableAlphabet[int(b)%len(printableAlphabet)]
	}
	return string(out), nil
}
