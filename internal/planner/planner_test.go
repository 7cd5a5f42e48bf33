package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

func regularDay(date string) alpaca.CalendarDay {
	return alpaca.CalendarDay{Date: date, Open: "09:30", Close: "16:00"}
}

func extendedDay(date string) alpaca.CalendarDay {
	return alpaca.CalendarDay{
		Date: date, Open: "09:30", Close: "16:00",
		SessionOpen: "0400", SessionClose: "2000",
	}
}

func TestComputePlan_NowInsideSession(t *testing.T) {
	now := marketclock.Date(2024, 2, 16, 9, 31, 0, 0)
	plan, err := ComputePlan(now, []alpaca.CalendarDay{
		regularDay("2024-02-15"),
		regularDay("2024-02-16"),
		regularDay("2024-02-20"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-16", marketclock.DateKey(plan.Current.Date))
	assert.Equal(t, "2024-02-15", marketclock.DateKey(plan.Previous.Date))
	assert.Equal(t, marketclock.Date(2024, 2, 16, 9, 30, 0, 0), plan.Current.Open)
	assert.Equal(t, marketclock.Date(2024, 2, 16, 16, 0, 0, 0), plan.Current.Close)

	require.Len(t, plan.FetchDays, 2)
	assert.Equal(t, "2024-02-15", marketclock.DateKey(plan.FetchDays[0]))
	assert.Equal(t, "2024-02-16", marketclock.DateKey(plan.FetchDays[1]))
}

func TestComputePlan_ExtendedSessionPreferred(t *testing.T) {
	// 09:29 is before the regular open but inside the extended session.
	now := marketclock.Date(2024, 2, 16, 9, 29, 0, 0)
	plan, err := ComputePlan(now, []alpaca.CalendarDay{
		extendedDay("2024-02-15"),
		extendedDay("2024-02-16"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-16", marketclock.DateKey(plan.Current.Date))
	assert.Equal(t, marketclock.Date(2024, 2, 16, 4, 0, 0, 0), plan.Current.Open)
	assert.Equal(t, marketclock.Date(2024, 2, 16, 20, 0, 0, 0), plan.Current.Close)
}

func TestComputePlan_BeforeOpenUsesUpcomingSession(t *testing.T) {
	now := marketclock.Date(2024, 2, 19, 9, 29, 55, 0)
	plan, err := ComputePlan(now, []alpaca.CalendarDay{
		regularDay("2024-02-16"),
		regularDay("2024-02-19"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-19", marketclock.DateKey(plan.Current.Date))
	assert.Equal(t, "2024-02-16", marketclock.DateKey(plan.Previous.Date))

	// Weekend days are still fetched.
	require.Len(t, plan.FetchDays, 4)
	assert.Equal(t, "2024-02-17", marketclock.DateKey(plan.FetchDays[1]))
	assert.Equal(t, "2024-02-18", marketclock.DateKey(plan.FetchDays[2]))
}

func TestComputePlan_ClockNextOpenResolvesSession(t *testing.T) {
	now := marketclock.Date(2024, 2, 17, 12, 0, 0, 0)
	clock := &alpaca.Clock{
		IsOpen:   false,
		NextOpen: marketclock.Date(2024, 2, 20, 9, 30, 0, 0),
	}
	plan, err := ComputePlan(now, []alpaca.CalendarDay{
		regularDay("2024-02-16"),
		regularDay("2024-02-20"),
	}, clock)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-20", marketclock.DateKey(plan.Current.Date))
	assert.Equal(t, "2024-02-16", marketclock.DateKey(plan.Previous.Date))
	assert.Len(t, plan.FetchDays, 5)
}

func TestComputePlan_FetchDayPartition(t *testing.T) {
	now := marketclock.Date(2024, 2, 19, 9, 31, 0, 0)
	plan, err := ComputePlan(now, []alpaca.CalendarDay{
		regularDay("2024-02-16"),
		regularDay("2024-02-19"),
	}, nil)
	require.NoError(t, err)

	prev := plan.FetchDaysFor(plan.Previous)
	require.Len(t, prev, 1)
	assert.Equal(t, "2024-02-16", marketclock.DateKey(prev[0]))

	curr := plan.FetchDaysFor(plan.Current)
	require.Len(t, curr, 3)
	assert.Equal(t, "2024-02-17", marketclock.DateKey(curr[0]))
	assert.Equal(t, "2024-02-18", marketclock.DateKey(curr[1]))
	assert.Equal(t, "2024-02-19", marketclock.DateKey(curr[2]))
}

func TestComputePlan_Errors(t *testing.T) {
	now := marketclock.Date(2024, 2, 16, 9, 31, 0, 0)

	_, err := ComputePlan(now, nil, nil)
	assert.Error(t, err)

	// No session before the current one.
	_, err = ComputePlan(now, []alpaca.CalendarDay{regularDay("2024-02-16")}, nil)
	assert.Error(t, err)

	// Nothing contains or follows now.
	_, err = ComputePlan(now, []alpaca.CalendarDay{
		regularDay("2024-02-14"),
		regularDay("2024-02-15"),
	}, nil)
	assert.Error(t, err)

	_, err = ComputePlan(now, []alpaca.CalendarDay{
		{Date: "bogus", Open: "09:30", Close: "16:00"},
	}, nil)
	assert.Error(t, err)
}
