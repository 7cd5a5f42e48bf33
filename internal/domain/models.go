// Package domain holds the core entity model shared by the repositories,
// the trade submitter, and the open-job orchestrator. It has no
// infrastructure dependencies.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the normalized disclosure transaction type.
type Transaction string

const (
	TransactionBuy     Transaction = "BUY"
	TransactionSell    Transaction = "SELL"
	TransactionUnknown Transaction = "UNKNOWN"
)

// Party is the normalized political party of the filing member.
type Party string

const (
	PartyDemocrat    Party = "DEMOCRAT"
	PartyRepublican  Party = "REPUBLICAN"
	PartyIndependent Party = "INDEPENDENT"
	PartyOther       Party = "OTHER"
	PartyUnknown     Party = "UNKNOWN"
)

// TradeStatus is the internal lifecycle status of a trade attempt.
type TradeStatus string

const (
	TradeStatusNew             TradeStatus = "NEW"
	TradeStatusAccepted        TradeStatus = "ACCEPTED"
	TradeStatusPartiallyFilled TradeStatus = "PARTIALLY_FILLED"
	TradeStatusFilled          TradeStatus = "FILLED"
	TradeStatusCanceled        TradeStatus = "CANCELED"
	TradeStatusRejected        TradeStatus = "REJECTED"
	TradeStatusFailed          TradeStatus = "FAILED"
)

// JobStatus is the lifecycle status of a job run.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobTypeOpen is the once-per-trading-day market-open job.
const JobTypeOpen = "OPEN_JOB"

// Filing is a normalized congressional trade disclosure. FilingDate and
// TradeDate are Eastern civil days (midnight Eastern instants).
type Filing struct {
	Ticker      string
	MemberName  string
	Transaction Transaction
	TradeDate   *time.Time
	FilingDate  time.Time
	Party       *Party
	Raw         json.RawMessage
}

// FeedEntry is a persisted filing.
type FeedEntry struct {
	ID         int64
	Filing     Filing
	IngestedAt time.Time
}

// TradeAttempt is one at-most-once buy attempt derived from a filing.
type TradeAttempt struct {
	ID                int64
	SourceHash        string
	ClientOrderID     string
	BrokerOrderID     *string
	Symbol            string
	Side              string
	OrderType         string
	TimeInForce       string
	NotionalSubmitted *decimal.Decimal
	QtySubmitted      *decimal.Decimal
	FilledQty         *decimal.Decimal
	FilledAvgPrice    *decimal.Decimal
	Status            TradeStatus
	FailureReason     *string
	FeedID            *int64
	RawOrderJSON      json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SubmittedAt       *time.Time
	FilledAt          *time.Time
	CanceledAt        *time.Time
	FailedAt          *time.Time
}

// JobRun is one execution record of a scheduled job, unique per
// (type, trading date).
type JobRun struct {
	ID            int64
	Type          string
	TradingDateET time.Time
	Status        JobStatus
	StartedAt     *time.Time
	FinishedAt    *time.Time
	SummaryJSON   json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IngestCheckpoint is the per-trading-date high-water mark of processed
// filing timestamps.
type IngestCheckpoint struct {
	TradingDateET          time.Time
	LastFiledTSProcessedET *time.Time
	UpdatedAt              time.Time
}
