package protection

type Category string

const (
	CategorySpam  Category = "spam"
	CategoryFlood Category = "flood"
	CategoryCaps  Category = "caps"
	CategoryRaid  Category = "raid"
	CategoryBot   Category = "bot"
)

// ReasonPrefix tags stored reasons so warns can be counted per category.
func (c Category) ReasonPrefix() string {
	return "[" + string(c) + "]"
}

type VerdictKind int

const (
	VerdictNone VerdictKind = iota
	VerdictWarnAndDelete
	VerdictBan
	VerdictBanAllRecent
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictWarnAndDelete:
		return "warn_and_delete"
	case VerdictBan:
		return "ban"
	case VerdictBanAllRecent:
		return "ban_all_recent"
	default:
		return "none"
	}
}

type Verdict struct {
	Kind     VerdictKind
	Category Category
	Reason   string
	// Targets lists the users to act on for membership verdicts. Message
	// verdicts leave it empty and apply to the sender.
	Targets []int64
	// Count is the number that tripped the detector: repeats, messages in
	// the window or joins.
	Count int
	Ratio float64
}

func None() Verdict {
	return Verdict{Kind: VerdictNone}
}

func (v Verdict) IsNone() bool {
	return v.Kind == VerdictNone
}

func newVerdict(kind VerdictKind, category Category, reason string) Verdict {
	return Verdict{Kind: kind, Category: category, Reason: category.ReasonPrefix() + " " + reason}
}
