package watcher

import (
	"fmt"
	"strings"

	"github.com/BearBump/RegBox/internal/models"
)

// Лексический классификатор страницы. Ничего не парсим: ложный "closed"
// дешевле ложного "open", который запускает платную попытку.
var positiveSignals = []string{
	"register now",
	"registration open",
	"registration is open",
	"registration is now open",
	"sign up now",
	"signup now",
	"enroll now",
	"enroll today",
}

var negativeSignals = []string{
	"registration closed",
	"registration is closed",
	"sold out",
	"waitlist only",
	"wait list only",
	"registration full",
	"coming soon",
}

// Classify scans a page body case-insensitively and returns a detection
// signal plus evidence. Verdict is open iff at least one positive signal
// matches and no negative does; any negative match wins.
func Classify(body string) (signal, evidence string) {
	low := strings.ToLower(body)

	var pos, neg []string
	for _, s := range positiveSignals {
		if strings.Contains(low, s) {
			pos = append(pos, s)
		}
	}
	for _, s := range negativeSignals {
		if strings.Contains(low, s) {
			neg = append(neg, s)
		}
	}

	switch {
	case len(neg) > 0:
		return models.DetectionSignalClosed, fmt.Sprintf("negative: %s", strings.Join(neg, ", "))
	case len(pos) > 0:
		return models.DetectionSignalOpen, fmt.Sprintf("positive: %s", strings.Join(pos, ", "))
	default:
		return models.DetectionSignalClosed, "no signals matched"
	}
}
