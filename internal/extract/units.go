package extract

import (
	"regexp"
	"strconv"
)

var (
	// unitCount matches per-package counts like "60粒", "90 顆", "30錠", "15包".
	unitCount = regexp.MustCompile(`(\d+)\s*[粒顆錠包]`)

	// bundleCount matches multi-pack markers like "x3", "X 3", "3入", "3盒".
	bundleCount = regexp.MustCompile(`(?i)(?:x\s*(\d+)|(\d+)\s*[入盒組])`)
)

// Units holds the quantity breakdown derived from product text.
type Units struct {
	CountPerPack int     // capsules/tablets/sachets per pack
	Bundle       int     // packs per bundle, 1 when sold singly
	TotalCount   int     // CountPerPack * Bundle
	UnitPrice    float64 // price / TotalCount, 0 when count is unknown
}

// ParseUnits derives the unit breakdown from the title and, when the title
// carries no usable count, from description text. Titles like
// "魚油 60粒 x3" yield count 60, bundle 3, total 180.
func ParseUnits(title, desc string, price int) Units {
	u := parseUnitsFrom(title, price)
	if u.TotalCount == 0 && desc != "" {
		u = parseUnitsFrom(desc, price)
	}
	return u
}

// parseUnitsFrom scans one text source for quantity-unit patterns.
//
// Two guards keep the heuristics honest: a bundle below 2 or above 12 is
// implausible and reset to 1, and a bundle equal to the pack count usually
// means both regexes matched the same number, so the bundle is dropped.
func parseUnitsFrom(text string, price int) Units {
	u := Units{Bundle: 1}

	if m := unitCount.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			u.CountPerPack = n
		}
	}

	if m := bundleCount.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n >= 2 && n <= 12 {
			u.Bundle = n
		}
	}

	// "60粒 60入" style double-match: the second number is the pack count
	// repeated, not a 60-pack bundle.
	if u.Bundle > 1 && u.Bundle == u.CountPerPack {
		u.Bundle = 1
	}

	// A bare count under 10 with no unit marker elsewhere is more likely a
	// dosage ("3顆/日") than the package size.
	if u.CountPerPack > 0 && u.CountPerPack < 10 {
		u.CountPerPack = 0
	}

	if u.CountPerPack > 0 {
		u.TotalCount = u.CountPerPack * u.Bundle
		if price > 0 {
			u.UnitPrice = round2(float64(price) / float64(u.TotalCount))
		}
	}

	return u
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
