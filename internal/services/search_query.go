package services

import (
	"regexp"
	"strconv"
	"strings"
)

// SearchFilters is the structured form of a free-text car search.
type SearchFilters struct {
	YearFrom *int     `json:"year_from,omitempty"`
	YearTo   *int     `json:"year_to,omitempty"`
	MaxPrice *int     `json:"max_price,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Empty reports whether nothing searchable was extracted.
func (f SearchFilters) Empty() bool {
	return f.YearFrom == nil && f.YearTo == nil && f.MaxPrice == nil && len(f.Keywords) == 0
}

var (
	yearRangePattern = regexp.MustCompile(`\b((?:19|20)\d{2})\s*(?:-|to|until)\s*((?:19|20)\d{2})\b`)
	yearBoundPattern = regexp.MustCompile(`\b(after|from|since|newer than|before|older than|until)\s+((?:19|20)\d{2})\b`)
	yearPattern      = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	pricePattern     = regexp.MustCompile(`\b(?:under|below|max|maximum|less than|up to|cheaper than)\s+\$?\s*(\d[\d,.]*)\s*(k|thousand)?\b`)
	wordPattern      = regexp.MustCompile(`[a-z0-9]+`)
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "for": {}, "with": {}, "in": {}, "of": {},
	"i": {}, "want": {}, "looking": {}, "need": {}, "car": {}, "cars": {}, "me": {},
	"some": {}, "any": {}, "to": {}, "or": {}, "that": {}, "is": {}, "my": {},
}

// ParseSearchQuery extracts a year range, a price ceiling and keywords from query.
func ParseSearchQuery(query string) SearchFilters {
	text := strings.ToLower(strings.TrimSpace(query))
	var filters SearchFilters

	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if price, ok := parsePrice(m[1], m[2] != ""); ok {
			filters.MaxPrice = &price
		}
		text = strings.Replace(text, m[0], " ", 1)
	}

	if m := yearRangePattern.FindStringSubmatch(text); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from > to {
			from, to = to, from
		}
		filters.YearFrom, filters.YearTo = &from, &to
		text = strings.Replace(text, m[0], " ", 1)
	} else if m := yearBoundPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "before", "older than", "until":
			filters.YearTo = &year
		default:
			filters.YearFrom = &year
		}
		text = strings.Replace(text, m[0], " ", 1)
	} else if m := yearPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		from, to := year, year
		filters.YearFrom, filters.YearTo = &from, &to
		text = strings.Replace(text, m[0], " ", 1)
	}

	seen := map[string]struct{}{}
	for _, word := range wordPattern.FindAllString(text, -1) {
		if _, skip := stopWords[word]; skip {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		filters.Keywords = append(filters.Keywords, word)
	}
	return filters
}

func parsePrice(raw string, thousands bool) (int, bool) {
	raw = strings.TrimRight(strings.ReplaceAll(raw, ",", ""), ".")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if thousands {
		value *= 1000
	}
	return int(value), true
}
