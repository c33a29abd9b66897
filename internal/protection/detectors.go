package protection

import (
	"context"
)

type (
	MessageDetector interface {
		Category() Category
		Enabled() bool
		CheckMessage(ctx context.Context, in *MessageInput) (Verdict, error)
	}

	JoinDetector interface {
		Category() Category
		Enabled() bool
		CheckJoins(ctx context.Context, in Joins) (Verdict, error)
	}
)

func thresholdVerdict(category Category, count, threshold, banThreshold int, reason string) Verdict {
	switch {
	case banThreshold > 0 && count >= banThreshold:
		v := newVerdict(VerdictBan, category, reason)
		v.Count = count
		return v
	case threshold > 0 && count >= threshold:
		v := newVerdict(VerdictWarnAndDelete, category, reason)
		v.Count = count
		return v
	}
	return None()
}
