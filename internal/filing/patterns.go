package filing

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"tenkindex/internal/text"
)

var ErrInvalidLibrary = errors.New("invalid pattern library")

// IndustryRule scores an industry by keyword occurrences. Rules are evaluated
// in slice order, which also breaks ties.
type IndustryRule struct {
	Industry string   `yaml:"industry"`
	Sector   string   `yaml:"sector"`
	Keywords []string `yaml:"keywords"`
}

// Library is the immutable set of heuristics used to read a filing. Every
// list is ordered by priority.
type Library struct {
	CompanyName []*regexp.Regexp
	Ticker      []*regexp.Regexp
	FilingYear  []*regexp.Regexp
	Employees   []*regexp.Regexp

	// Cover page identifiers. Each pattern captures the value in group 1.
	CIK            []*regexp.Regexp
	CommissionFile []*regexp.Regexp
	Exchange       []*regexp.Regexp

	// Securities find the Section 12(b) registration table (group 1) and
	// Listings pick every ticker out of it (group 1 per match).
	Securities []*regexp.Regexp
	Listings   []*regexp.Regexp

	Revenue            []*regexp.Regexp
	GrossProfit        []*regexp.Regexp
	OperatingIncome    []*regexp.Regexp
	NetIncome          []*regexp.Regexp
	TotalAssets        []*regexp.Regexp
	TotalLiabilities   []*regexp.Regexp
	ShareholdersEquity []*regexp.Regexp
	CashAndEquivalents []*regexp.Regexp

	// TickerStopwords are exchange and security words that look like tickers.
	TickerStopwords []string

	Sections   []text.SectionRule
	Industries []IndustryRule
}

// amount captures a figure and an optional trailing scale word.
const amount = `[:\$\s]*([\d,]+\.?\d*)\s*(million|billion|thousand)?`

// headcount captures a whole number, either grouped with commas or bare.
const headcount = `\b(\d{1,3}(?:,\d{3})+|\d+)`

func DefaultLibrary() *Library {
	return &Library{
		CompanyName: compileAll(
			`(?im)^\s*([^\n]+?)\s*\n\s*\(exact name of registrant`,
			`(?im)(?:company name|registrant)[:\s]+(.*?)(?:\n|$)`,
			`(?im)^(.*?)\s*(?:inc\.?|corp\.?|corporation|company|ltd\.?|llc)`,
			`(?i)(?:^|\n)(.*?)\s+form 10-k`,
			`(?i)(?:^|\n)(.*?)\s+annual report`,
		),
		Ticker: compileAll(
			`(?i:trading\s+symbol(?:\(s\))?|ticker\s+symbol)[:\s]*\b([A-Z]{1,5})\b`,
			`(?i:common\s+stock).*?(?i:symbol)[:\s]*\b([A-Z]{1,5})\b`,
			`\(([A-Z]{2,5})\)\s*(?i:common\s+stock)`,
			`\b([A-Z]{1,5})\s+(?i:nasdaq|nyse|amex)\b`,
		),
		FilingYear: compileAll(
			`(?i)(?:fiscal year|year ended).*?december 31,?\s*(\d{4})`,
			`(?i)fiscal\s+year\s+ended\s+[a-z]+\s+\d{1,2},?\s*(\d{4})`,
			`(?i)for the year ended.*?(\d{4})`,
			`(?i)annual report.*?(\d{4})`,
			`(?i)form 10-k.*?(\d{4})`,
		),
		Employees: compileAll(
			`(?i)(?:approximately\s+)?`+headcount+`\s+(?:full-time\s+)?employees`,
			`(?i)employees?[:\s]*(?:approximately\s+)?`+headcount+`\b`,
			`(?i)workforce\s+of\s+(?:approximately\s+)?`+headcount+`\b`,
		),
		CIK: compileAll(
			`(?i)\bCIK\s*(?:No\.?)?\s*:?\s*(\d{10})\b`,
			`(?i)central\s+index\s+key\s*:?\s*(\d{10})\b`,
			`(?i)commission\s+file\s+number\s*:?\s*\d+-(\d{10})\b`,
		),
		CommissionFile: compileAll(
			`(?i)commission\s+file\s+(?:number|no\.?)\s*:?\s*(\d+(?:-\d+)+)`,
		),
		Exchange: compileAll(
			`(?i)(nasdaq\s+global\s+select\s+market)`,
			`(?i)(nasdaq\s+global\s+market)`,
			`(?i)(new\s+york\s+stock\s+exchange)`,
			`\b(NYSE)\b`,
			`(?i)\b(nasdaq)\b`,
		),
		Securities: compileAll(
			`(?is)securities\s+registered\s+pursuant\s+to\s+section\s+12\(b\)(.*?)securities\s+registered\s+pursuant\s+to\s+section\s+12\(g\)`,
			`(?is)securities\s+registered\s+pursuant\s+to\s+section\s+12\(b\)(.{0,800})`,
		),
		Listings: compileAll(
			`\b([A-Z]{1,5})\s+(?i:the\s+)?(?i:nasdaq|new\s+york\s+stock\s+exchange|nyse|cboe)`,
		),

		Revenue: compileAll(
			`(?i)(?:total\s+)?(?:net\s+)?revenues?\s*(?:\(in millions\))?`+amount,
			`(?i)(?:net\s+)?sales\s*(?:\(in millions\))?`+amount,
			`(?i)consolidated revenues?`+amount,
		),
		GrossProfit: compileAll(
			`(?i)gross profit`+amount,
		),
		OperatingIncome: compileAll(
			`(?i)(?:income from operations|operating income)`+amount,
			`(?i)operating earnings`+amount,
		),
		NetIncome: compileAll(
			`(?i)net (?:income|earnings)`+amount,
		),
		TotalAssets: compileAll(
			`(?i)total assets`+amount,
		),
		TotalLiabilities: compileAll(
			`(?i)total liabilities`+amount,
		),
		ShareholdersEquity: compileAll(
			`(?i)(?:shareholders'?\s*equity|stockholders'?\s*equity)`+amount,
		),
		CashAndEquivalents: compileAll(
			`(?i)cash and (?:cash equivalents|equivalents)`+amount,
		),

		TickerStopwords: []string{"NYSE", "NASDAQ", "AMEX", "OTC", "CLASS", "STOCK", "COMMON", "MARKET", "LLC", "INC", "THE"},

		Sections: []text.SectionRule{
			{Pattern: regexp.MustCompile(`(?i)ITEM\s+1\.\s+BUSINESS`), Label: "business_overview"},
			{Pattern: regexp.MustCompile(`(?i)ITEM\s+1A\.\s+RISK\s+FACTORS`), Label: "risk_factors"},
			{Pattern: regexp.MustCompile(`(?i)ITEM\s+7\.\s+MANAGEMENT.S\s+DISCUSSION`), Label: "financial_analysis"},
			{Pattern: regexp.MustCompile(`(?i)ITEM\s+8\.\s+FINANCIAL\s+STATEMENTS`), Label: "financial_statements"},
			{Pattern: regexp.MustCompile(`(?i)consolidated\s+balance\s+sheets`), Label: "balance_sheet"},
			{Pattern: regexp.MustCompile(`(?i)consolidated\s+statements\s+of\s+income`), Label: "income_statement"},
			{Pattern: regexp.MustCompile(`(?i)consolidated\s+statements\s+of\s+cash\s+flows`), Label: "cash_flow"},
			{Pattern: regexp.MustCompile(`(?i)(?:revenues?\s+by|segment\s+information)`), Label: "revenue_breakdown"},
			{Pattern: regexp.MustCompile(`(?i)(?:competition|competitive\s+environment)`), Label: "competitive_analysis"},
			{Pattern: regexp.MustCompile(`(?i)products\s+and\s+services`), Label: "products_services"},
		},

		Industries: []IndustryRule{
			{Industry: "Cloud Computing", Sector: "Technology", Keywords: []string{"cloud", "saas", "infrastructure", "platform", "serverless"}},
			{Industry: "E-commerce", Sector: "Consumer Discretionary", Keywords: []string{"online retail", "marketplace", "e-commerce", "digital commerce", "fulfillment"}},
			{Industry: "Social Media", Sector: "Communication Services", Keywords: []string{"social", "networking", "platform", "user-generated", "advertising"}},
			{Industry: "Streaming/Entertainment", Sector: "Communication Services", Keywords: []string{"streaming", "content", "entertainment", "subscription", "media"}},
			{Industry: "Financial Technology", Sector: "Financial Services", Keywords: []string{"fintech", "payments", "banking", "financial services", "investment"}},
			{Industry: "Healthcare Technology", Sector: "Healthcare", Keywords: []string{"healthcare", "medical", "telemedicine", "pharmaceutical", "biotech"}},
			{Industry: "Energy", Sector: "Energy", Keywords: []string{"oil", "gas", "energy", "renewable", "utilities", "solar", "wind"}},
			{Industry: "Automotive", Sector: "Consumer Discretionary", Keywords: []string{"automotive", "vehicles", "transportation", "mobility", "electric vehicles"}},
			{Industry: "Retail", Sector: "Consumer Staples", Keywords: []string{"retail", "consumer goods", "food", "beverage", "apparel"}},
			{Industry: "Aerospace", Sector: "Industrials", Keywords: []string{"aerospace", "defense", "aviation", "space", "satellite"}},
		},
	}
}

type libraryFile struct {
	Facts    map[string][]string `yaml:"facts"`
	Sections []struct {
		Pattern string `yaml:"pattern"`
		Label   string `yaml:"label"`
	} `yaml:"sections"`
	Industries      []IndustryRule `yaml:"industries"`
	TickerStopwords []string       `yaml:"ticker_stopwords"`
}

// LoadLibrary reads a YAML pattern table. Anything the file leaves out keeps
// the default table. Patterns are compiled as written, so flags such as (?i)
// belong inside the pattern.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read pattern library: %w", err)
	}
	return ParseLibrary(data)
}

func ParseLibrary(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}

	lib := DefaultLibrary()
	for name, sources := range f.Facts {
		slot := lib.fact(name)
		if slot == nil {
			return nil, fmt.Errorf("%w: unknown fact %q", ErrInvalidLibrary, name)
		}
		compiled, err := compileEach(sources)
		if err != nil {
			return nil, fmt.Errorf("%w: fact %s: %v", ErrInvalidLibrary, name, err)
		}
		*slot = compiled
	}

	if len(f.Sections) > 0 {
		rules := make([]text.SectionRule, 0, len(f.Sections))
		for _, s := range f.Sections {
			if s.Label == "" {
				return nil, fmt.Errorf("%w: section %q has no label", ErrInvalidLibrary, s.Pattern)
			}
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: section %s: %v", ErrInvalidLibrary, s.Label, err)
			}
			rules = append(rules, text.SectionRule{Pattern: re, Label: s.Label})
		}
		lib.Sections = rules
	}

	if len(f.Industries) > 0 {
		for _, r := range f.Industries {
			if r.Industry == "" || len(r.Keywords) == 0 {
				return nil, fmt.Errorf("%w: industry rules need a name and keywords", ErrInvalidLibrary)
			}
		}
		lib.Industries = f.Industries
	}

	if f.TickerStopwords != nil {
		lib.TickerStopwords = f.TickerStopwords
	}

	return lib, nil
}

func (l *Library) fact(name string) *[]*regexp.Regexp {
	switch name {
	case "company_name":
		return &l.CompanyName
	case "ticker":
		return &l.Ticker
	case "filing_year":
		return &l.FilingYear
	case "employees":
		return &l.Employees
	case "cik":
		return &l.CIK
	case "commission_file_number":
		return &l.CommissionFile
	case "exchange":
		return &l.Exchange
	case "securities":
		return &l.Securities
	case "listings":
		return &l.Listings
	case "revenue":
		return &l.Revenue
	case "gross_profit":
		return &l.GrossProfit
	case "operating_income":
		return &l.OperatingIncome
	case "net_income":
		return &l.NetIncome
	case "total_assets":
		return &l.TotalAssets
	case "total_liabilities":
		return &l.TotalLiabilities
	case "shareholders_equity":
		return &l.ShareholdersEquity
	case "cash_and_equivalents":
		return &l.CashAndEquivalents
	}
	return nil
}

func compileAll(sources ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(sources))
	for i, s := range sources {
		out[i] = regexp.MustCompile(s)
	}
	return out
}

func compileEach(sources []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(sources))
	for _, s := range sources {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
