package scoring

import "github.com/oppscan/oppscan/internal/domain"

// windowDays derives an expected actionable-window length from the time
// multiplier: a higher multiplier (more urgency) compresses the window.
// The 45-day anchor is this scorer's own calibration choice, not a
// spec-given constant — see the design notes' Open Question decisions.
func windowDays(multiplier float64) int {
	days := 45 / multiplier
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}
	return int(days + 0.5)
}

func windowClassify(days int) (domain.WindowLabel, float64) {
	switch {
	case days <= 14:
		return domain.WindowCritical, 2.0
	case days <= 30:
		return domain.WindowUrgent, 1.5
	case days <= 60:
		return domain.WindowActive, 1.2
	case days <= 90:
		return domain.WindowStandard, 1.0
	default:
		return domain.WindowExtended, 0.7
	}
}
