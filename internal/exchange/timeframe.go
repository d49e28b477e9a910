package exchange

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/snipetrade/snipetrade/internal/domain"
)

var tfPattern = regexp.MustCompile(`^(\d+)\s*([MHDW])$`)

var tfUnitMS = map[string]int64{
	"M": 60 * 1000,
	"H": 60 * 60 * 1000,
	"D": 24 * 60 * 60 * 1000,
	"W": 7 * 24 * 60 * 60 * 1000,
}

// ParseTimeframe converts a timeframe string such as "15m" or "4h" to
// milliseconds. The unit may be m, h, d, or w in either case.
func ParseTimeframe(tf string) (int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(tf))
	if normalized == "" {
		return 0, domain.E(domain.KindConfig, "timeframe cannot be empty")
	}

	match := tfPattern.FindStringSubmatch(normalized)
	if match == nil {
		return 0, domain.Ef(domain.KindConfig, "unsupported timeframe format: %s", tf)
	}

	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, domain.Ef(domain.KindConfig, "timeframe value must be positive: %s", tf)
	}

	return amount * tfUnitMS[match[2]], nil
}
