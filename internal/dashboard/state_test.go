package dashboard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"finboard/internal/core"
)

var now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func mk(id, amount, category string, ts time.Time) core.Transaction {
	return core.Transaction{ID: id, Amount: decimal.RequireFromString(amount), Description: id, Category: category, Timestamp: ts}
}

func ids(txs []core.Transaction) []string {
	out := []string{}
	for _, t := range txs {
		out = append(out, t.ID)
	}
	return out
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	s0 := Initial()
	s1 := s0.WithTimeFrame(core.Month).WithCriteria(core.CriteriaFromInput("food", "", "")).OpenDrawer()

	assert.Equal(t, core.All, s0.TimeFrame)
	assert.Nil(t, s0.Criteria.Category)
	assert.False(t, s0.DrawerOpen)

	assert.Equal(t, core.Month, s1.TimeFrame)
	assert.True(t, s1.DrawerOpen)
	assert.Equal(t, 1, s1.Criteria.ActiveCount())

	s2 := s1.ClearFilters().CloseDrawer()
	assert.True(t, s2.Criteria.IsEmpty())
	assert.Equal(t, core.Month, s2.TimeFrame, "clear keeps the time frame")
	assert.Equal(t, 1, s1.Criteria.ActiveCount())
}

func TestClearSingleFilters(t *testing.T) {
	s := Initial().WithCriteria(core.CriteriaFromInput("food", "1", "9"))
	assert.Equal(t, 2, s.ClearCategory().Criteria.ActiveCount())
	assert.Equal(t, 1, s.ClearAmount().Criteria.ActiveCount())
}

func TestLoadedSortsAndResets(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := Initial().SyncStarted().Invalidated().Loaded([]core.Transaction{
		mk("a", "1", "x", d1), mk("b", "1", "x", d1.Add(48*time.Hour)),
	}, now)

	assert.Equal(t, Ready, s.Phase)
	assert.False(t, s.Syncing)
	assert.False(t, s.Stale)
	assert.Empty(t, s.Err)
	assert.Equal(t, []string{"b", "a"}, ids(s.Transactions()))
}

func TestLoadFailedWithoutDataIsFailed(t *testing.T) {
	s := Initial().LoadFailed(MsgFetchFailed)
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, "Failed to fetch transactions", s.Err)
	assert.Equal(t, Loading, s.Reloading().Phase)
	assert.Empty(t, s.Reloading().Err)
}

func TestSyncFailureRetainsList(t *testing.T) {
	s := Initial().Loaded([]core.Transaction{mk("a", "5", "x", now)}, now)
	s = s.SyncStarted()
	assert.True(t, s.Syncing)
	assert.Equal(t, []string{"a"}, ids(s.Transactions()), "list visible while syncing")

	s = s.SyncFailed()
	assert.Equal(t, Ready, s.Phase)
	assert.False(t, s.Syncing)
	assert.Equal(t, "Failed to sync transactions", s.Err)
	assert.Equal(t, []string{"a"}, ids(s.Transactions()))
}

func TestEditAndRemoveAreCopies(t *testing.T) {
	s := Initial().Loaded([]core.Transaction{mk("a", "5", "x", now), mk("b", "7", "y", now)}, now)
	edited := s.WithTransactionEdited("a", "z")
	assert.Equal(t, "z", edited.Transactions()[0].Category)
	assert.Equal(t, "x", s.Transactions()[0].Category)

	removed := s.WithTransactionRemoved("a")
	assert.Equal(t, []string{"b"}, ids(removed.Transactions()))
	assert.Equal(t, []string{"a", "b"}, ids(s.Transactions()))
}

func TestStateView(t *testing.T) {
	s := Initial().Loaded([]core.Transaction{
		mk("march", "10", "food", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		mk("feb", "20", "rent", time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)),
	}, now).WithTimeFrame(core.PrevMonth)

	v := s.View(now)
	assert.Equal(t, []string{"feb"}, ids(v.Transactions))
	assert.Equal(t, []string{"rent"}, v.Categories)
}
