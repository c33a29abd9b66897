package protection

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iamwavecut/chatguard/internal/config"
)

const (
	defaultHistorySize = 10_000
	defaultJoinSize    = 1_000
)

type (
	historyKey struct {
		chatID int64
		userID int64
	}

	// HistoryWindow is the per (chat, user) state shared by the spam and
	// flood detectors.
	HistoryWindow struct {
		messages     []time.Time
		lastText     string
		repeatCount  int
		lastRepeatAt time.Time
	}

	join struct {
		userID int64
		at     time.Time
	}

	// JoinWindow is the per chat record of recent joins.
	JoinWindow struct {
		joins []join
	}

	// Windows holds every ephemeral window. Idle windows are evicted after
	// ttl, which must exceed the longest retention horizon of any detector.
	// Callers serialize access per key.
	Windows struct {
		history *expirable.LRU[historyKey, *HistoryWindow]
		joins   *expirable.LRU[int64, *JoinWindow]
	}
)

func NewWindows(ttl time.Duration) *Windows {
	return &Windows{
		history: expirable.NewLRU[historyKey, *HistoryWindow](defaultHistorySize, nil, ttl),
		joins:   expirable.NewLRU[int64, *JoinWindow](defaultJoinSize, nil, ttl),
	}
}

// History returns the window of the pair, creating it on first use. Every
// call pushes the expiry forward.
func (w *Windows) History(chatID, userID int64) *HistoryWindow {
	k := historyKey{chatID: chatID, userID: userID}
	h, ok := w.history.Get(k)
	if !ok {
		h = &HistoryWindow{}
	}
	w.history.Add(k, h)
	return h
}

func (w *Windows) Joins(chatID int64) *JoinWindow {
	j, ok := w.joins.Get(chatID)
	if !ok {
		j = &JoinWindow{}
	}
	w.joins.Add(chatID, j)
	return j
}

// within reports whether at falls inside window measured back from now.
// The edge itself is inside.
func within(now, at time.Time, window time.Duration) bool {
	return now.Sub(at) <= window
}

func pruneTimes(times []time.Time, now time.Time, retain time.Duration) []time.Time {
	kept := times[:0]
	for _, at := range times {
		if within(now, at, retain) {
			kept = append(kept, at)
		}
	}
	return kept
}

func countTimes(times []time.Time, now time.Time, window time.Duration) int {
	n := 0
	for _, at := range times {
		if within(now, at, window) {
			n++
		}
	}
	return n
}

// RetentionFor returns an idle expiry long enough for every enabled window.
func RetentionFor(cfg config.Protection) time.Duration {
	longest := time.Minute
	for _, w := range []time.Duration{cfg.Spam.Window, cfg.Flood.Window, cfg.Raid.Window} {
		if w > longest {
			longest = w
		}
	}
	return 2 * longest
}
