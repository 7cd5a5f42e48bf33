package domain

import "strings"

// NormalizeTicker upper-cases and trims a raw ticker.
func NormalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeTransaction maps the feed's free-form transaction strings by
// case-insensitive substring. "Sold" deliberately does not match "sale" and
// stays UNKNOWN; only explicit purchases are ever traded.
func NormalizeTransaction(raw string) Transaction {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "purchase"), strings.Contains(lower, "buy"):
		return TransactionBuy
	case strings.Contains(lower, "sale"):
		return TransactionSell
	default:
		return TransactionUnknown
	}
}

// NormalizeParty maps the feed's party strings by trimmed upper-case prefix.
// A missing field stays nil; a present-but-blank field is UNKNOWN.
func NormalizeParty(raw *string) *Party {
	if raw == nil {
		return nil
	}
	upper := strings.ToUpper(strings.TrimSpace(*raw))
	var p Party
	switch {
	case upper == "":
		p = PartyUnknown
	case strings.HasPrefix(upper, "REP"):
		p = PartyRepublican
	case strings.HasPrefix(upper, "IND"):
		p = PartyIndependent
	case strings.HasPrefix(upper, "OTHER"):
		p = PartyOther
	case strings.HasPrefix(upper, "D"):
		p = PartyDemocrat
	default:
		p = PartyUnknown
	}
	return &p
}
