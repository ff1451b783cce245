package spend

import "errors"

// ErrNoSpace is returned when every ledger slot is bound to some other
// instrument. Capacity is fixed at setup; operators raise it by issuing a new
// authorization unit.
var ErrNoSpace = errors.New("spend: no ledger slot available")

// Slot records the rolling spend history of one funding instrument. A slot is
// blank until an instrument is bound to it; binding happens at first lookup
// and is permanent.
type Slot struct {
	Instrument   ID     `json:"instrument"`
	Uses         uint64 `json:"uses"`
	LastSpend    uint64 `json:"last_spend"`
	WindowStart  uint64 `json:"window_start"`
	GenericScore uint8  `json:"generic_score"`
}

// IsBlank reports whether the slot is unbound.
func (s *Slot) IsBlank() bool { return s.Instrument.IsZero() }

// Ledger is a fixed-capacity table of per-instrument spend slots. Capacity is
// chosen when the authorization unit is created and never changes.
type Ledger struct {
	Slots []Slot `json:"slots"`
}

// NewLedger creates a ledger with the given number of blank slots.
func NewLedger(capacity uint8) Ledger {
	return Ledger{Slots: make([]Slot, capacity)}
}

// Clone returns a deep copy, used to snapshot ledger state into a request.
func (l Ledger) Clone() Ledger {
	slots := make([]Slot, len(l.Slots))
	copy(slots, l.Slots)
	return Ledger{Slots: slots}
}

// FindOrAllocate returns the slot bound to instrument, binding the first
// blank slot if none matches. The scan is deterministic: matching slot first,
// else first blank, else ErrNoSpace. A blank slot is bound immediately, even
// before any rule evaluation succeeds, reserving capacity for the instrument.
func (l *Ledger) FindOrAllocate(instrument ID) (*Slot, error) {
	var blank *Slot
	for i := range l.Slots {
		slot := &l.Slots[i]
		if slot.IsBlank() {
			if blank == nil {
				blank = slot
			}
			continue
		}
		if slot.Instrument == instrument {
			return slot, nil
		}
	}
	if blank != nil {
		blank.Instrument = instrument
		return blank, nil
	}
	return nil, ErrNoSpace
}

// Commit records a completed transfer. Sweeps never update rate-limit state;
// for everything else the bound slot's window start and last spend are
// overwritten with the committed transfer's values.
func (l *Ledger) Commit(ctx *TransferContext) error {
	slot, err := l.FindOrAllocate(ctx.Instrument)
	if err != nil {
		return err
	}
	if ctx.IsSweep {
		return nil
	}
	slot.WindowStart = ctx.LogicalTime
	slot.LastSpend = ctx.Amount
	slot.GenericScore = 0
	return nil
}

// Clean blanks every slot whose window started before cutoff, releasing
// capacity held by instruments that have gone quiet.
func (l *Ledger) Clean(cutoff uint64) {
	for i := range l.Slots {
		if !l.Slots[i].IsBlank() && l.Slots[i].WindowStart < cutoff {
			l.Slots[i] = Slot{}
		}
	}
}
