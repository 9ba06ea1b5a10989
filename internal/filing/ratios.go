package filing

// Derive fills the ratio fields from the raw facts. A ratio whose inputs are
// missing or whose denominator is not positive is cleared, so calling Derive
// twice gives the same record.
func Derive(r *Record) {
	r.GrossMargin = percentOf(r.GrossProfit, r.Revenue)
	r.OperatingMargin = percentOf(r.OperatingIncome, r.Revenue)
	r.NetMargin = percentOf(r.NetIncome, r.Revenue)
	r.ROE = percentOf(r.NetIncome, r.ShareholdersEquity)
	r.ROA = percentOf(r.NetIncome, r.TotalAssets)
	r.DebtToEquity = ratio(r.TotalLiabilities, r.ShareholdersEquity)

	r.RevenuePerEmployee = nil
	if r.Revenue != nil && r.Employees != nil && *r.Employees > 0 {
		r.RevenuePerEmployee = ptr(*r.Revenue / float64(*r.Employees))
	}
}

func ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den <= 0 {
		return nil
	}
	return ptr(*num / *den)
}

func percentOf(num, den *float64) *float64 {
	v := ratio(num, den)
	if v == nil {
		return nil
	}
	return ptr(*v * 100)
}
