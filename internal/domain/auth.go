package domain

// SubjectType tells ticket-facing code which kind of principal a token was
// issued for: end-users open and follow tickets, staff work them.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)
