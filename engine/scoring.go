package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ARROW - One scored arrow
// =============================================================================

// Arrow is the recorded value of one arrow: "0".."10", "X" (inner ten,
// worth 10) or "M" (miss, worth 0).
type Arrow string

const (
	ArrowX    Arrow = "X"
	ArrowMiss Arrow = "M"
)

// ParseArrow normalises and validates a scorecard entry.
func ParseArrow(s string) (Arrow, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch Arrow(s) {
	case ArrowX, ArrowMiss:
		return Arrow(s), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 10 {
		return "", &InvalidInputError{Field: "arrow", Reason: fmt.Sprintf("%q is not 0-10, X or M", s)}
	}
	return Arrow(strconv.Itoa(n)), nil
}

// Value returns the points the arrow is worth.
func (a Arrow) Value() int {
	switch a {
	case ArrowX:
		return 10
	case ArrowMiss:
		return 0
	}
	n, _ := strconv.Atoi(string(a))
	return n
}

// ParseEnds parses a scorecard (ends of arrows). Empty ends are dropped.
func ParseEnds(raw [][]string) ([][]Arrow, error) {
	ends := make([][]Arrow, 0, len(raw))
	for i, end := range raw {
		if len(end) == 0 {
			continue
		}
		arrows := make([]Arrow, len(end))
		for j, s := range end {
			a, err := ParseArrow(s)
			if err != nil {
				return nil, &InvalidInputError{Field: fmt.Sprintf("ends[%d][%d]", i, j), Reason: fmt.Sprintf("%q is not 0-10, X or M", s)}
			}
			arrows[j] = a
		}
		ends = append(ends, arrows)
	}
	if len(ends) == 0 {
		return nil, &InvalidInputError{Field: "ends", Reason: "at least one arrow is required"}
	}
	return ends, nil
}

// EndTotal sums one end.
func EndTotal(end []Arrow) int {
	total := 0
	for _, a := range end {
		total += a.Value()
	}
	return total
}

// SessionTotal sums every end.
func SessionTotal(ends [][]Arrow) int {
	total := 0
	for _, end := range ends {
		total += EndTotal(end)
	}
	return total
}

// ArrowCount counts the arrows shot.
func ArrowCount(ends [][]Arrow) int {
	n := 0
	for _, end := range ends {
		n += len(end)
	}
	return n
}

// =============================================================================
// SESSION STATS - Detail view numbers
// =============================================================================

type SessionStats struct {
	Score     int
	Arrows    int
	Tens      int // 10s and Xs
	Xs        int
	Misses    int // Ms and 0s
	EndTotals []int
	Average   decimal.Decimal // points per arrow, one decimal place
}

func StatsFor(s ShotSession) SessionStats {
	st := SessionStats{Score: s.Score, EndTotals: make([]int, len(s.Ends))}
	for i, end := range s.Ends {
		st.EndTotals[i] = EndTotal(end)
		for _, a := range end {
			st.Arrows++
			switch {
			case a == ArrowX:
				st.Xs++
				st.Tens++
			case a.Value() == 10:
				st.Tens++
			case a.Value() == 0:
				st.Misses++
			}
		}
	}
	if st.Arrows > 0 {
		st.Average = decimal.NewFromInt(int64(st.Score)).
			Div(decimal.NewFromInt(int64(st.Arrows))).
			Round(1)
	}
	return st
}
