package filing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenkindex/features/filing"
	facts "tenkindex/internal/filing"
	"tenkindex/internal/testutils"
)

func TestFilingRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()

	repo := filing.NewPostgresRepo(s.DB)
	ctx := context.Background()

	save := func(ticker string, year int, revenue float64) {
		rec := facts.NewRecord(ticker+" Corp", ticker)
		rec.FilingYear = &year
		rec.Revenue = &revenue
		rec.Industry, rec.Sector = "Energy", "Energy"
		require.NoError(t, repo.SaveRecord(ctx, rec, 10, "/data/"+ticker+".pdf"))
	}

	save("ACME", 2022, 800)
	save("ACME", 2023, 1000)
	save("BIGG", 2023, 3000)
	save("HUGE", 2023, 9000)
	save("SMAL", 2023, 300)
	// in band two years ago, below it now
	save("FADE", 2022, 1200)
	save("FADE", 2023, 100)

	// same ticker and year replaces the row
	save("SMAL", 2023, 350)

	latest, err := repo.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, 2023, *latest.FilingYear)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	peers, err := repo.Comparables(ctx, "Energy", "ACME", 250, 4000, 10)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "BIGG", peers[0].Ticker)
	assert.Equal(t, "SMAL", peers[1].Ticker)
	assert.Equal(t, 350.0, *peers[1].Revenue)
	for _, p := range peers {
		assert.NotEqual(t, "FADE", p.Ticker, "an older filing must not stand in for the latest")
	}

	rec := facts.NewRecord("Alphabet Inc.", "GOOGL")
	year := 2023
	rec.FilingYear = &year
	rec.CIK, rec.CommissionFile, rec.Exchange = "0001652044", "001-37580", "Nasdaq"
	rec.TickerSymbols = []string{"GOOGL", "GOOG"}
	require.NoError(t, repo.SaveRecord(ctx, rec, 1, "/data/googl.pdf"))

	got, err := repo.Get(ctx, "GOOGL")
	require.NoError(t, err)
	assert.Equal(t, "0001652044", got.CIK)
	assert.Equal(t, "001-37580", got.CommissionFile)
	assert.Equal(t, "Nasdaq", got.Exchange)
	assert.Equal(t, []string{"GOOGL", "GOOG"}, got.TickerSymbols)

	require.NoError(t, repo.Delete(ctx, "HUGE"))
	_, err = repo.Get(ctx, "HUGE")
	assert.ErrorIs(t, err, filing.ErrNotFound)
}
