package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

// clientOrderIDMaxLen is the broker's limit on client-supplied order ids.
const clientOrderIDMaxLen = 48

// SourceHash derives the content-addressed identity of a filing. Distinct
// raw records that normalize to the same (ticker, member, filing date, trade
// date, transaction) tuple collapse to the same hash, which is what makes
// trade submission at-most-once.
func (f Filing) SourceHash() string {
	tradeDate := ""
	if f.TradeDate != nil {
		tradeDate = marketclock.DateKey(*f.TradeDate)
	}
	parts := []string{
		strings.ToUpper(strings.TrimSpace(f.Ticker)),
		strings.TrimSpace(f.MemberName),
		marketclock.DateKey(f.FilingDate),
		tradeDate,
		string(f.Transaction),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// ClientOrderIDFromHash truncates a source hash to the broker's
// client-order-id limit. The truncated hash doubles as the broker-side
// idempotency key.
func ClientOrderIDFromHash(hash string) string {
	if len(hash) > clientOrderIDMaxLen {
		return hash[:clientOrderIDMaxLen]
	}
	return hash
}
