package session

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Notifier receives the user-visible session notices.
type Notifier interface {
	// SessionExpiring is delivered once per arming, either when the warn
	// window opens or immediately if the session is already inside it.
	SessionExpiring(remaining time.Duration)

	// SessionExpired is delivered just before the forced logout.
	SessionExpired()
}

// MinutesLeft rounds remaining up to whole minutes, never below one.
func MinutesLeft(remaining time.Duration) int {
	minutes := int(math.Ceil(remaining.Minutes()))
	return max(minutes, 1)
}

// ExpiryWarning renders the warning shown for remaining time left.
func ExpiryWarning(remaining time.Duration) string {
	minutes := MinutesLeft(remaining)
	plural := "s"
	if minutes == 1 {
		plural = ""
	}
	return fmt.Sprintf("Session expires in ~%d minute%s. Save your work.", minutes, plural)
}

// ExpiredNotice is the message shown when the session is forcibly ended.
const ExpiredNotice = "Session expired. Please log in again."

// LogNotifier writes the notices to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

var _ Notifier = LogNotifier{}

func (n LogNotifier) SessionExpiring(remaining time.Duration) {
	n.Logger.Warn().Dur("remaining", remaining).Msg(ExpiryWarning(remaining))
}

func (n LogNotifier) SessionExpired() {
	n.Logger.Warn().Msg(ExpiredNotice)
}
