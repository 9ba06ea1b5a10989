package filing

// Record holds the facts extracted from one 10-K filing. Optional values are
// pointers; nil means the fact was not found or failed plausibility checks.
type Record struct {
	CompanyName string `json:"company_name"`
	Ticker      string `json:"ticker"`

	// Cover page identifiers; empty when not found. TickerSymbols lists every
	// registered share class, primary ticker first.
	CIK            string   `json:"cik,omitempty"`
	CommissionFile string   `json:"commission_file_number,omitempty"`
	Exchange       string   `json:"exchange,omitempty"`
	TickerSymbols  []string `json:"ticker_symbols,omitempty"`

	FilingYear         *int     `json:"filing_year,omitempty"`
	Revenue            *float64 `json:"revenue,omitempty"`
	GrossProfit        *float64 `json:"gross_profit,omitempty"`
	OperatingIncome    *float64 `json:"operating_income,omitempty"`
	NetIncome          *float64 `json:"net_income,omitempty"`
	TotalAssets        *float64 `json:"total_assets,omitempty"`
	TotalLiabilities   *float64 `json:"total_liabilities,omitempty"`
	ShareholdersEquity *float64 `json:"shareholders_equity,omitempty"`
	CashAndEquivalents *float64 `json:"cash_and_equivalents,omitempty"`
	Employees          *int64   `json:"employees,omitempty"`

	Industry string `json:"industry,omitempty"`
	Sector   string `json:"sector,omitempty"`

	// Derived by Derive.
	GrossMargin        *float64 `json:"gross_margin,omitempty"`
	OperatingMargin    *float64 `json:"operating_margin,omitempty"`
	NetMargin          *float64 `json:"net_margin,omitempty"`
	ROE                *float64 `json:"roe,omitempty"`
	ROA                *float64 `json:"roa,omitempty"`
	RevenuePerEmployee *float64 `json:"revenue_per_employee,omitempty"`
	DebtToEquity       *float64 `json:"debt_to_equity,omitempty"`
}

func NewRecord(companyName, ticker string) *Record {
	return &Record{CompanyName: companyName, Ticker: ticker}
}

// Fields flattens the present fields into snake_case keys.
func (r *Record) Fields() map[string]any {
	m := map[string]any{
		"company_name": r.CompanyName,
		"ticker":       r.Ticker,
	}
	if r.FilingYear != nil {
		m["filing_year"] = *r.FilingYear
	}
	if r.Employees != nil {
		m["employees"] = *r.Employees
	}
	for name, v := range map[string]string{
		"cik":                    r.CIK,
		"commission_file_number": r.CommissionFile,
		"exchange":               r.Exchange,
		"industry":               r.Industry,
	} {
		if v != "" {
			m[name] = v
		}
	}
	if len(r.TickerSymbols) > 0 {
		m["ticker_symbols"] = append([]string(nil), r.TickerSymbols...)
	}
	if r.Sector != "" {
		m["sector"] = r.Sector
	}
	for name, v := range r.monetary() {
		if v != nil {
			m[name] = *v
		}
	}
	for name, v := range r.ratios() {
		if v != nil {
			m[name] = *v
		}
	}
	return m
}

func (r *Record) monetary() map[string]*float64 {
	return map[string]*float64{
		"revenue":              r.Revenue,
		"gross_profit":         r.GrossProfit,
		"operating_income":     r.OperatingIncome,
		"net_income":           r.NetIncome,
		"total_assets":         r.TotalAssets,
		"total_liabilities":    r.TotalLiabilities,
		"shareholders_equity":  r.ShareholdersEquity,
		"cash_and_equivalents": r.CashAndEquivalents,
	}
}

func (r *Record) ratios() map[string]*float64 {
	return map[string]*float64{
		"gross_margin":         r.GrossMargin,
		"operating_margin":     r.OperatingMargin,
		"net_margin":           r.NetMargin,
		"roe":                  r.ROE,
		"roa":                  r.ROA,
		"revenue_per_employee": r.RevenuePerEmployee,
		"debt_to_equity":       r.DebtToEquity,
	}
}

func ptr[T any](v T) *T {
	return &v
}
