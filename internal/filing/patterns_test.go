package filing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLibrary(t *testing.T) {
	t.Run("Overrides only what is given", func(t *testing.T) {
		lib, err := ParseLibrary([]byte(`
facts:
  revenue:
    - '(?i)turnover[:\s]*([\d,]+)'
sections:
  - pattern: '(?i)^rapport annuel'
    label: annual_report
`))
		require.NoError(t, err)
		require.Len(t, lib.Revenue, 1)
		require.Len(t, lib.Sections, 1)
		assert.Equal(t, "annual_report", lib.Sections[0].Label)
		assert.Equal(t, len(DefaultLibrary().NetIncome), len(lib.NetIncome))
		assert.Len(t, lib.Industries, 10)

		v, ok := NewValueParser().FindValue("Turnover: 25,000", lib.Revenue)
		assert.True(t, ok)
		assert.Equal(t, 25_000.0, v)
	})

	t.Run("Industries", func(t *testing.T) {
		lib, err := ParseLibrary([]byte(`
industries:
  - industry: Mining
    sector: Materials
    keywords: [ore, mine]
`))
		require.NoError(t, err)
		industry, sector := NewClassifier(lib.Industries).Classify("iron ore mine")
		assert.Equal(t, "Mining", industry)
		assert.Equal(t, "Materials", sector)
	})

	t.Run("Cover identifiers", func(t *testing.T) {
		lib, err := ParseLibrary([]byte(`
facts:
  cik:
    - '(?i)registrant id[:\s]*(\d+)'
  exchange:
    - '(Euronext)'
`))
		require.NoError(t, err)
		r := NewExtractor(lib).Extract("Registrant ID: 42\nListed on Euronext Paris", "Acme", "ACME")
		assert.Equal(t, "42", r.CIK)
		assert.Equal(t, "Euronext", r.Exchange)
		assert.Len(t, lib.CommissionFile, len(DefaultLibrary().CommissionFile))
	})

	tests := []struct {
		name string
		yaml string
	}{
		{"Unknown fact", "facts:\n  dividends: ['x(\\d+)']\n"},
		{"Bad fact regex", "facts:\n  revenue: ['(unclosed']\n"},
		{"Bad section regex", "sections:\n  - pattern: '[z-a]'\n    label: broken\n"},
		{"Section without label", "sections:\n  - pattern: 'x'\n"},
		{"Industry without keywords", "industries:\n  - industry: Empty\n"},
		{"Not YAML", "facts: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLibrary([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidLibrary)
		})
	}
}

func TestLoadLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ticker_stopwords: [FOO]\n"), 0o600))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FOO"}, lib.TickerStopwords)

	_, err = LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultLibrary_Sections(t *testing.T) {
	lib := DefaultLibrary()
	labels := map[string]bool{}
	for _, s := range lib.Sections {
		labels[s.Label] = true
	}
	for _, want := range []string{
		"business_overview", "risk_factors", "financial_analysis", "financial_statements",
		"balance_sheet", "income_statement", "cash_flow", "revenue_breakdown",
		"competitive_analysis", "products_services",
	} {
		assert.True(t, labels[want], want)
	}
}
