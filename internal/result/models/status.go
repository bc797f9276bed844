package models

// ResultStatus is the lifecycle state of a test result.
//
// Allowed edges:
//
//	draft ──> verified ──> released ──> amended ──> amended
//	  └──> draft (edits; version bumps, state stays)
//
// Once released, only released and amended are reachable; draft and verified
// are never re-entered.
type ResultStatus string

const (
	StatusDraft    ResultStatus = "draft"
	StatusVerified ResultStatus = "verified"
	StatusReleased ResultStatus = "released"
	StatusAmended  ResultStatus = "amended"
)

var allowedTransitions = map[ResultStatus][]ResultStatus{
	StatusDraft:    {StatusVerified},
	StatusVerified: {StatusReleased},
	StatusReleased: {StatusAmended},
	StatusAmended:  {StatusAmended},
}

// CanTransitionTo reports whether the edge from s to target exists.
func (s ResultStatus) CanTransitionTo(target ResultStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether normal edits are over for this status. Released
// and amended results can only change through the amendment process.
func (s ResultStatus) Terminal() bool {
	return s == StatusReleased || s == StatusAmended
}

var validStatuses = map[ResultStatus]bool{
	StatusDraft:    true,
	StatusVerified: true,
	StatusReleased: true,
	StatusAmended:  true,
}

// IsValid checks if the status is one of the supported enum values.
func (s ResultStatus) IsValid() bool {
	return validStatuses[s]
}

// DataSource records how a result value arrived.
type DataSource string

const (
	SourceManual     DataSource = "manual"
	SourceInstrument DataSource = "instrument"
)

// IsValid checks if the data source is one of the supported enum values.
func (d DataSource) IsValid() bool {
	return d == SourceManual || d == SourceInstrument
}

// ResultKind distinguishes numeric results from option-valued ones.
// Quantitative values must parse as decimals and are flagged against a
// numeric reference range; qualitative values are flagged against the set of
// normal options.
type ResultKind string

const (
	KindQuantitative ResultKind = "quantitative"
	KindQualitative  ResultKind = "qualitative"
)

// IsValid checks if the kind is one of the supported enum values.
func (k ResultKind) IsValid() bool {
	return k == KindQuantitative || k == KindQualitative
}
