package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"tenkindex/features/filing"
	"tenkindex/internal/retrieval"
)

type tool struct {
	Tool
	run func(ctx context.Context, args json.RawMessage) (string, error)
}

var errUnavailable = errors.New("service not configured")

type searchArgs struct {
	Query       string   `json:"query"`
	Alpha       *float32 `json:"alpha"`
	Limit       *int     `json:"limit"`
	Ticker      string   `json:"ticker"`
	Sector      string   `json:"sector"`
	Industry    string   `json:"industry"`
	SectionType string   `json:"section_type"`
}

type listArgs struct {
	Sector string `json:"sector"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type tickerArgs struct {
	Ticker string `json:"ticker"`
	Limit  int    `json:"limit"`
}

func (h *Handler) toolset() []tool {
	return []tool{
		{
			Tool: Tool{
				Name:        "tenk_search",
				Description: "Hybrid keyword and vector search over indexed 10-K chunks. Narrow with ticker, sector, industry or section_type (e.g. risk_factors, financial_analysis).",
				InputSchema: schema(map[string]any{
					"query":        prop("string", "Search query"),
					"alpha":        prop("number", "0 is pure keyword, 1 is pure vector. Default 0.5"),
					"limit":        prop("integer", "Maximum results. Default 5"),
					"ticker":       prop("string", "Only chunks from this company"),
					"sector":       prop("string", "Only chunks from this sector"),
					"industry":     prop("string", "Only chunks from this industry"),
					"section_type": prop("string", "Only chunks from this filing section"),
				}, "query"),
			},
			run: h.search,
		},
		{
			Tool: Tool{
				Name:        "tenk_list_filings",
				Description: "List indexed companies with their headline financials.",
				InputSchema: schema(map[string]any{
					"sector": prop("string", "Only companies in this sector"),
					"limit":  prop("integer", "Page size. Default 50"),
					"offset": prop("integer", "Rows to skip"),
				}),
			},
			run: h.listFilings,
		},
		{
			Tool: Tool{
				Name:        "tenk_get_filing",
				Description: "Full financial record of a company's latest filing, including derived ratios.",
				InputSchema: schema(map[string]any{
					"ticker": prop("string", "Company ticker"),
				}, "ticker"),
			},
			run: h.getFiling,
		},
		{
			Tool: Tool{
				Name:        "tenk_comparables",
				Description: "Same-sector companies with revenue between a quarter and four times the given company's.",
				InputSchema: schema(map[string]any{
					"ticker": prop("string", "Reference company ticker"),
					"limit":  prop("integer", "Maximum peers. Default 10"),
				}, "ticker"),
			},
			run: h.comparables,
		},
		{
			Tool: Tool{
				Name:        "tenk_read_filing",
				Description: "Read a company's indexed filing chunks in document order.",
				InputSchema: schema(map[string]any{
					"ticker": prop("string", "Company ticker"),
					"limit":  prop("integer", "Maximum chunks. Default 100"),
				}, "ticker"),
			},
			run: h.readFiling,
		},
	}
}

func (h *Handler) search(ctx context.Context, raw json.RawMessage) (string, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", invalidParams("Invalid arguments: %v", err)
	}
	if h.retriever == nil {
		return "", errUnavailable
	}

	filters := map[string]string{}
	for k, v := range map[string]string{
		"ticker":       args.Ticker,
		"sector":       args.Sector,
		"industry":     args.Industry,
		"section_type": args.SectionType,
	} {
		if v != "" {
			filters[k] = v
		}
	}

	results, err := h.retriever.Search(ctx, args.Query, &retrieval.SearchOptions{
		Alpha:   args.Alpha,
		Limit:   args.Limit,
		Filters: filters,
	})
	if errors.Is(err, retrieval.ErrEmptyQuery) || errors.Is(err, retrieval.ErrInvalidFilter) {
		return "", invalidParams("%v", err)
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Result %d (score %.4f)\n", i+1, r.Score)
		fmt.Fprintf(&b, "Company: %s (%s)\n", r.CompanyName, r.Ticker)
		if r.SectionType != "" {
			fmt.Fprintf(&b, "Section: %s\n", r.SectionType)
		}
		fmt.Fprintf(&b, "Chunk: %s\n\n%s\n\n---\n\n", r.ChunkID, r.Content)
	}
	return b.String(), nil
}

func (h *Handler) listFilings(ctx context.Context, raw json.RawMessage) (string, error) {
	var args listArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", invalidParams("Invalid arguments: %v", err)
	}
	if h.catalog == nil {
		return "", errUnavailable
	}

	filings, err := h.catalog.List(ctx, filing.ListOptions{Sector: args.Sector, Limit: args.Limit, Offset: args.Offset})
	if err != nil {
		return "", err
	}
	if len(filings) == 0 {
		return "No filings indexed.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d filings\n\n", len(filings))
	for i := range filings {
		f := &filings[i]
		fmt.Fprintf(&b, "%s  %s  %s  %s  revenue %s\n",
			f.Ticker, f.CompanyName, yearText(f.FilingYear), f.Sector, money(f.Revenue))
	}
	return b.String(), nil
}

func (h *Handler) getFiling(ctx context.Context, raw json.RawMessage) (string, error) {
	ticker, _, err := parseTicker(raw)
	if err != nil {
		return "", err
	}
	if h.catalog == nil {
		return "", errUnavailable
	}

	f, err := h.catalog.Get(ctx, ticker)
	if errors.Is(err, filing.ErrNotFound) {
		return notIndexed(ticker), nil
	}
	if err != nil {
		return "", err
	}
	return describe(f), nil
}

func (h *Handler) comparables(ctx context.Context, raw json.RawMessage) (string, error) {
	ticker, limit, err := parseTicker(raw)
	if err != nil {
		return "", err
	}
	if h.catalog == nil {
		return "", errUnavailable
	}

	cmp, err := h.catalog.Comparables(ctx, ticker, limit)
	if errors.Is(err, filing.ErrNotFound) {
		return notIndexed(ticker), nil
	}
	if err != nil {
		return "", err
	}

	ref := cmp.Reference
	var b strings.Builder
	fmt.Fprintf(&b, "Peers of %s (%s, revenue %s)\n\n", ref.Ticker, ref.Sector, money(ref.Revenue))
	if len(cmp.Comparables) == 0 {
		b.WriteString("No comparable companies found.\n")
		return b.String(), nil
	}
	for i := range cmp.Comparables {
		p := &cmp.Comparables[i]
		fmt.Fprintf(&b, "%s  %s  revenue %s  net margin %s\n",
			p.Ticker, p.CompanyName, money(p.Revenue), percent(p.NetMargin))
	}
	return b.String(), nil
}

func (h *Handler) readFiling(ctx context.Context, raw json.RawMessage) (string, error) {
	ticker, limit, err := parseTicker(raw)
	if err != nil {
		return "", err
	}
	if h.catalog == nil {
		return "", errUnavailable
	}

	chunks, err := h.catalog.Chunks(ctx, ticker, limit)
	if errors.Is(err, filing.ErrNotFound) {
		return notIndexed(ticker), nil
	}
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return fmt.Sprintf("No chunks indexed for %s.", strings.ToUpper(ticker)), nil
	}

	var b strings.Builder
	section := ""
	for _, c := range chunks {
		if c.SectionType != section {
			section = c.SectionType
			fmt.Fprintf(&b, "## %s\n\n", section)
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func parseTicker(raw json.RawMessage) (string, int, error) {
	var args tickerArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", 0, invalidParams("Invalid arguments: %v", err)
	}
	ticker := strings.TrimSpace(args.Ticker)
	if ticker == "" {
		return "", 0, invalidParams("ticker is required")
	}
	return ticker, args.Limit, nil
}

func describe(f *filing.Filing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s), fiscal year %s\n", f.CompanyName, f.Ticker, yearText(f.FilingYear))
	fmt.Fprintf(&b, "Industry: %s / %s\n", f.Industry, f.Sector)
	if f.Employees != nil {
		fmt.Fprintf(&b, "Employees: %s\n", humanize.Comma(*f.Employees))
	}
	if f.Exchange != "" {
		fmt.Fprintf(&b, "Listed on %s", f.Exchange)
		if len(f.TickerSymbols) > 0 {
			fmt.Fprintf(&b, " as %s", strings.Join(f.TickerSymbols, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	lines := []struct {
		label string
		value string
	}{
		{"Revenue", money(f.Revenue)},
		{"Gross profit", money(f.GrossProfit)},
		{"Operating income", money(f.OperatingIncome)},
		{"Net income", money(f.NetIncome)},
		{"Total assets", money(f.TotalAssets)},
		{"Total liabilities", money(f.TotalLiabilities)},
		{"Shareholders' equity", money(f.ShareholdersEquity)},
		{"Cash and equivalents", money(f.CashAndEquivalents)},
		{"Gross margin", percent(f.GrossMargin)},
		{"Operating margin", percent(f.OperatingMargin)},
		{"Net margin", percent(f.NetMargin)},
		{"ROE", percent(f.ROE)},
		{"ROA", percent(f.ROA)},
		{"Revenue per employee", money(f.RevenuePerEmployee)},
		{"Debt to equity", ratio(f.DebtToEquity)},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "%s: %s\n", l.label, l.value)
	}
	fmt.Fprintf(&b, "\nIndexed chunks: %d\n", f.ChunkCount)
	return b.String()
}

func notIndexed(ticker string) string {
	return fmt.Sprintf("No filing indexed for %s.", strings.ToUpper(ticker))
}

func yearText(y *int) string {
	if y == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *y)
}

// money renders large figures with an SI suffix, e.g. $394.33B.
func money(v *float64) string {
	if v == nil {
		return "n/a"
	}
	amount, suffix := humanize.ComputeSI(*v)
	switch suffix {
	case "G":
		suffix = "B"
	case "k":
		suffix = "K"
	}
	return "$" + humanize.FtoaWithDigits(amount, 2) + suffix
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return humanize.FtoaWithDigits(*v, 1) + "%"
}

func ratio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return humanize.FtoaWithDigits(*v, 2)
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}
