package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusVoided    Status = "VOIDED"
)

// COMPLETED and VOIDED are terminal. The only path into COMPLETED is a
// successful stock deduction; voiding is allowed from PENDING only and never
// touches inventory.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusVoided: true},
	StatusCompleted: {},
	StatusVoided:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
