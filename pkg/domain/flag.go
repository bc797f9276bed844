package domain

// Flag is the advisory classification of a result value against its
// reference range. It is metadata for alerting and display, never a gate on
// lifecycle transitions.
type Flag string

const (
	FlagNormal   Flag = "normal"
	FlagLow      Flag = "low"
	FlagHigh     Flag = "high"
	FlagAbnormal Flag = "abnormal"
	FlagCritical Flag = "critical"
)

// IsCritical reports whether the flag should trigger critical alerting.
// Critical always takes precedence regardless of numeric direction.
func (f Flag) IsCritical() bool {
	return f == FlagCritical
}

var validFlags = map[Flag]bool{
	FlagNormal:   true,
	FlagLow:      true,
	FlagHigh:     true,
	FlagAbnormal: true,
	FlagCritical: true,
}

// IsValid checks if the flag is one of the supported enum values.
func (f Flag) IsValid() bool {
	return validFlags[f]
}
