package spend

// TransferContext is the immutable snapshot a spend request is evaluated
// against. It is captured once at request creation; every rule sees the same
// values. Only IsSweep changes after creation, set when a sweep rule is
// processed so the ledger commit does not treat the transfer as a
// rate-limited spend.
type TransferContext struct {
	Caller      ID     `json:"caller"`      // identity invoking the transfer
	Linker      ID     `json:"linker"`      // links the rule applications of one request
	Source      ID     `json:"source"`      // funding instrument being drawn from
	Destination ID     `json:"destination"` // funding instrument being paid to
	Instrument  ID     `json:"instrument"`  // instrument kind spend history is tracked against
	Amount      uint64 `json:"amount"`
	LogicalTime uint64 `json:"logical_time"`
	IsSweep     bool   `json:"is_sweep"`
}
