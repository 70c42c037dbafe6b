package orders

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	orderNumberPrefix   = "PN"
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberSuffix   = 3
)

// NewOrderNumber returns a human-facing reference such as PN-1403-K7Q: the
// day and month of now followed by three random characters. Numbers are not
// unique; the order id is the identity.
func NewOrderNumber(now time.Time, r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	var b strings.Builder
	b.WriteString(orderNumberPrefix)
	b.WriteByte('-')
	b.WriteString(now.Format("0201"))
	b.WriteByte('-')
	for i := 0; i < orderNumberSuffix; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return b.String(), nil
}
