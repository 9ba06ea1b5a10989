package filing

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	UnknownCompany = "Unknown Company"
	UnknownTicker  = "UNK"

	// HeaderLength is how much of a filing Identify looks at.
	HeaderLength = 3000
)

var (
	nameNoise   = regexp.MustCompile(`[^\w\s&.\-]`)
	tickerShape = regexp.MustCompile(`^[A-Z]{1,5}$`)
)

// Extractor turns raw filing text into a Record. It holds no per-document
// state and is safe for concurrent use.
type Extractor struct {
	lib        *Library
	values     *ValueParser
	classifier *Classifier
}

func NewExtractor(lib *Library) *Extractor {
	return &Extractor{
		lib:        lib,
		values:     NewValueParser(),
		classifier: NewClassifier(lib.Industries),
	}
}

func (e *Extractor) Library() *Library {
	return e.lib
}

// Extract reads every fact independently. Facts that are not found stay nil;
// Extract never fails.
func (e *Extractor) Extract(text, companyName, ticker string) *Record {
	r := NewRecord(companyName, ticker)

	if y, ok := firstInt(text, e.lib.FilingYear); ok {
		year := int(y)
		r.FilingYear = &year
	}

	monetary := []struct {
		patterns []*regexp.Regexp
		dst      **float64
	}{
		{e.lib.Revenue, &r.Revenue},
		{e.lib.GrossProfit, &r.GrossProfit},
		{e.lib.OperatingIncome, &r.OperatingIncome},
		{e.lib.NetIncome, &r.NetIncome},
		{e.lib.TotalAssets, &r.TotalAssets},
		{e.lib.TotalLiabilities, &r.TotalLiabilities},
		{e.lib.ShareholdersEquity, &r.ShareholdersEquity},
		{e.lib.CashAndEquivalents, &r.CashAndEquivalents},
	}
	for _, m := range monetary {
		if v, ok := e.values.FindValue(text, m.patterns); ok {
			*m.dst = ptr(v)
		}
	}

	if n, ok := firstInt(text, e.lib.Employees); ok {
		r.Employees = ptr(n)
	}

	header := coverPage(text)
	r.CIK = firstString(header, e.lib.CIK)
	r.CommissionFile = firstString(header, e.lib.CommissionFile)
	r.Exchange = strings.Join(strings.Fields(firstString(header, e.lib.Exchange)), " ")
	r.TickerSymbols = e.listings(header, ticker)

	r.Industry, r.Sector = e.classifier.Classify(text)
	return r
}

// Identify guesses the company name and ticker from the document header,
// falling back to UnknownCompany and UnknownTicker.
func (e *Extractor) Identify(text string) (companyName, ticker string) {
	header := coverPage(text)
	return e.companyName(header), e.ticker(header)
}

func coverPage(text string) string {
	if len(text) > HeaderLength {
		return text[:HeaderLength]
	}
	return text
}

func (e *Extractor) companyName(header string) string {
	for _, re := range e.lib.CompanyName {
		for _, m := range re.FindAllStringSubmatch(header, -1) {
			if len(m) < 2 {
				continue
			}
			name := strings.TrimSpace(nameNoise.ReplaceAllString(m[1], ""))
			name = strings.Join(strings.Fields(name), " ")
			if len(name) > 3 && !allDigits(name) {
				return name
			}
		}
	}
	return UnknownCompany
}

func (e *Extractor) ticker(header string) string {
	for _, re := range e.lib.Ticker {
		for _, m := range re.FindAllStringSubmatch(header, -1) {
			if len(m) < 2 {
				continue
			}
			t := strings.ToUpper(strings.TrimSpace(m[1]))
			if tickerShape.MatchString(t) && !e.stopword(t) {
				return t
			}
		}
	}
	return UnknownTicker
}

// listings returns the tickers registered under Section 12(b), primary first.
// Without a registration table, or when no listing is found, it returns nil.
func (e *Extractor) listings(header, primary string) []string {
	region := header
	for _, re := range e.lib.Securities {
		if m := re.FindStringSubmatch(header); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			region = m[1]
			break
		}
	}

	var found []string
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			found = append(found, t)
		}
	}
	for _, re := range e.lib.Listings {
		for _, m := range re.FindAllStringSubmatch(region, -1) {
			t := strings.ToUpper(m[1])
			if tickerShape.MatchString(t) && !e.stopword(t) {
				add(t)
			}
		}
	}
	if len(found) == 0 {
		return nil
	}

	primary = strings.ToUpper(strings.TrimSpace(primary))
	if primary == "" || primary == UnknownTicker {
		return found
	}
	out := []string{primary}
	for _, t := range found {
		if t != primary {
			out = append(out, t)
		}
	}
	return out
}

func (e *Extractor) stopword(t string) bool {
	for _, w := range e.lib.TickerStopwords {
		if strings.EqualFold(w, t) {
			return true
		}
	}
	return false
}

// firstInt returns group 1 of the first match of the first pattern that
// matches, with thousands separators removed.
func firstInt(text string, patterns []*regexp.Regexp) (int64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// firstString returns the trimmed group 1 of the first pattern that matches.
func firstString(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
