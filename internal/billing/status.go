package billing

// Order status machine. Forward-only: staff move an order down the line,
// never back.
const (
	StatusPlaced    = "placed"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusCompleted = "completed"
)

var statusRank = map[string]int{
	StatusPlaced:    0,
	StatusPreparing: 1,
	StatusReady:     2,
	StatusCompleted: 3,
}

func IsValidStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// CanTransition reports whether moving from one status to another is allowed.
// Only strictly forward moves are; skipping stages is fine.
func CanTransition(from, to string) bool {
	a, okA := statusRank[from]
	b, okB := statusRank[to]
	return okA && okB && b > a
}
