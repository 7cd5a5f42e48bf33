package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

func testFiling() Filing {
	filed := marketclock.Date(2024, time.February, 16, 0, 0, 0, 0)
	traded := marketclock.Date(2024, time.February, 10, 0, 0, 0, 0)
	return Filing{
		Ticker:      "AAPL",
		MemberName:  "Jane Doe",
		Transaction: TransactionBuy,
		FilingDate:  filed,
		TradeDate:   &traded,
	}
}

func TestSourceHash_Stable(t *testing.T) {
	a := testFiling()
	b := testFiling()
	assert.Equal(t, a.SourceHash(), b.SourceHash())
	assert.Len(t, a.SourceHash(), 64)
}

func TestSourceHash_CaseInsensitiveTicker(t *testing.T) {
	a := testFiling()
	b := testFiling()
	b.Ticker = "aapl"
	assert.Equal(t, a.SourceHash(), b.SourceHash())
}

func TestSourceHash_DistinguishesIdentityFields(t *testing.T) {
	base := testFiling()

	ticker := testFiling()
	ticker.Ticker = "MSFT"
	assert.NotEqual(t, base.SourceHash(), ticker.SourceHash())

	member := testFiling()
	member.MemberName = "John Doe"
	assert.NotEqual(t, base.SourceHash(), member.SourceHash())

	filed := testFiling()
	filed.FilingDate = marketclock.Date(2024, time.February, 15, 0, 0, 0, 0)
	assert.NotEqual(t, base.SourceHash(), filed.SourceHash())

	noTrade := testFiling()
	noTrade.TradeDate = nil
	assert.NotEqual(t, base.SourceHash(), noTrade.SourceHash())

	txn := testFiling()
	txn.Transaction = TransactionSell
	assert.NotEqual(t, base.SourceHash(), txn.SourceHash())
}

func TestClientOrderIDFromHash(t *testing.T) {
	hash := testFiling().SourceHash()
	cid := ClientOrderIDFromHash(hash)
	assert.Len(t, cid, 48)
	assert.Equal(t, hash[:48], cid)

	assert.Equal(t, "short", ClientOrderIDFromHash("short"))
}
