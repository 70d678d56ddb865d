package extract

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonAmountChars = regexp.MustCompile(`[^0-9.,-]`)
	isoDatePrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`),
		regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`),
		regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`),
		regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
	}
)

// CleanAmount normalizes a model-reported amount to a plain decimal string.
// Currency symbols and letters are stripped first, then the separator
// convention is inferred: when both "." and "," appear, "." is the thousands
// separator and "," the decimal mark (European style). A lone "," is a decimal
// mark only when followed by exactly two digits. Unparseable input is returned
// unchanged rather than guessed at.
func CleanAmount(s string) string {
	if s == "" {
		return ""
	}

	cleaned := nonAmountChars.ReplaceAllString(s, "")
	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case strings.Contains(cleaned, ","):
		parts := strings.Split(cleaned, ",")
		if len(parts[len(parts)-1]) == 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		slog.Warn("extract.amount_unparseable", "raw", s)
		return s
	}
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// CleanDate normalizes a model-reported date to YYYY-MM-DD. Recognized input
// shapes: YYYY-M-D, M/D/YYYY (slash dates read as US order), D.M.YYYY (dot
// dates read as European order), and YYYYMMDD. Anything else, including
// free-text dates, is returned unchanged.
func CleanDate(s string) string {
	if s == "" {
		return ""
	}
	if isoDatePrefix.MatchString(s) {
		return s
	}

	for _, pat := range datePatterns {
		m := pat.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		var year, month, day string
		switch {
		case len(m[1]) == 4:
			year, month, day = m[1], m[2], m[3]
		case strings.Contains(s, "/"):
			month, day, year = m[1], m[2], m[3]
		default:
			day, month, year = m[1], m[2], m[3]
		}
		y, errY := strconv.Atoi(year)
		mo, errM := strconv.Atoi(month)
		d, errD := strconv.Atoi(day)
		if errY != nil || errM != nil || errD != nil {
			break
		}
		return formatDate(y, mo, d)
	}

	slog.Warn("extract.date_unparseable", "raw", s)
	return s
}

func formatDate(y, m, d int) string {
	return strconv.Itoa(y) + "-" + pad2(m) + "-" + pad2(d)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
