package payments

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// maxMerchantOrderIDLen is PhonePe's limit for merchantOrderId.
const maxMerchantOrderIDLen = 63

// NewOrderID builds ORD_<unix millis>_<user>_<random suffix>. The suffix keeps
// two clicks by the same user in the same millisecond apart.
func NewOrderID(now time.Time, userID string) string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		copy(suffix, []byte(fmt.Sprintf("%03d", now.Nanosecond()%1000)))
	}
	return buildOrderID(now, userID, hex.EncodeToString(suffix))
}

func buildOrderID(now time.Time, userID, suffix string) string {
	prefix := fmt.Sprintf("ORD_%d_", now.UnixMilli())
	user := sanitizeOrderIDPart(userID)
	budget := maxMerchantOrderIDLen - len(prefix) - len(suffix) - 1
	if budget < 0 {
		budget = 0
	}
	if len(user) > budget {
		user = user[:budget]
	}
	return prefix + user + "_" + suffix
}

// sanitizeOrderIDPart keeps only characters PhonePe accepts in order ids.
func sanitizeOrderIDPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToPaise converts a major-unit amount to the smallest currency unit.
func ToPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromPaise converts the smallest currency unit back to major units.
func FromPaise(paise int64) float64 {
	return float64(paise) / 100
}
