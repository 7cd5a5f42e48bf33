package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTransaction(t *testing.T) {
	cases := []struct {
		raw  string
		want Transaction
	}{
		{"Purchase", TransactionBuy},
		{"purchase", TransactionBuy},
		{"Partial Purchase", TransactionBuy},
		{"Buy", TransactionBuy},
		{"Sale", TransactionSell},
		{"Sale (Full)", TransactionSell},
		{"Sale (Partial)", TransactionSell},
		{"Sold", TransactionUnknown},
		{"Exchange", TransactionUnknown},
		{"", TransactionUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTransaction(tc.raw))
		})
	}
}

func TestNormalizeParty(t *testing.T) {
	str := func(s string) *string { return &s }

	cases := []struct {
		name string
		raw  *string
		want *Party
	}{
		{"missing", nil, nil},
		{"democrat", str("D"), partyPtr(PartyDemocrat)},
		{"democrat full", str("Democrat"), partyPtr(PartyDemocrat)},
		{"republican", str("REP"), partyPtr(PartyRepublican)},
		{"republican full", str("Republican"), partyPtr(PartyRepublican)},
		{"independent", str("Independent"), partyPtr(PartyIndependent)},
		{"other", str("Other"), partyPtr(PartyOther)},
		{"blank", str("   "), partyPtr(PartyUnknown)},
		{"unmatched", str("Libertarian"), partyPtr(PartyUnknown)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeParty(tc.raw)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker("  aapl "))
	assert.Equal(t, "BRK.B", NormalizeTicker("brk.b"))
}

func partyPtr(p Party) *Party {
	return &p
}
