package events

import (
	"math/big"
	"strconv"
	"strings"
)

func normalizeAsset(asset string) string {
	return strings.TrimSpace(asset)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func joinUints(values []uint64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = uintToString(v)
	}
	return strings.Join(parts, ",")
}
