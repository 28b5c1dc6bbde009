// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Reference prefixes for the per-purchase records.
const (
	PrefixInvoice     = "INV"
	PrefixTransaction = "TXN"
	PrefixOrder       = "ORD"
	PrefixTracking    = "TN"
	PrefixCustom      = "CUSTOM"
)

func GenerateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

func randomInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}

// GenerateReference builds ids such as INV1718000000000123: prefix, epoch
// milliseconds and a random suffix below 10000.
func GenerateReference(prefix string) string {
	return fmt.Sprintf("%s%d%d", prefix, time.Now().UnixMilli(), randomInt(10000))
}

// GenerateCustomReference returns ids like CUSTOM-LUQ3M8ZK-7F2QA: base36
// epoch milliseconds and five random characters.
func GenerateCustomReference() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = charset[randomInt(int64(len(charset)))]
	}
	stamp := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%s", PrefixCustom, stamp, suffix)
}

// GenerateTrackingNumber returns TN, epoch milliseconds and three digits.
func GenerateTrackingNumber() string {
	return fmt.Sprintf("%s%d%03d", PrefixTracking, time.Now().UnixMilli(), randomInt(1000))
}

// GenerateSKU derives a readable stock keeping unit for a variant.
func GenerateSKU(productID uint64, size, color string) string {
	code := color
	if len(code) > 3 {
		code = code[:3]
	}
	return fmt.Sprintf("SF-%d-%s-%s", productID, size, code)
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}
