package tradebook

// Event is a lifecycle trigger applied to a transaction.
type Event string

// Lifecycle events.
const (
	EventAmend     Event = "amend"
	EventSupersede Event = "supersede"
	EventCancel    Event = "cancel"
	EventNet       Event = "net"
	EventNovate    Event = "novate"
)

// Events lists every lifecycle event.
var Events = []Event{EventAmend, EventSupersede, EventCancel, EventNet, EventNovate}

// transitions is the legal transition table. Only New and Amended accept
// events; Superseded is frozen history and the others are absorbing.
var transitions = map[Status]map[Event]Status{
	New: {
		EventAmend:     Amended,
		EventSupersede: Superseded,
		EventCancel:    Cancelled,
		EventNet:       Netted,
		EventNovate:    Novated,
	},
	Amended: {
		EventAmend:     Amended,
		EventSupersede: Superseded,
		EventCancel:    Cancelled,
		EventNet:       Netted,
		EventNovate:    Novated,
	},
}

// Transition returns the status reached from 'from' on event ev, or an
// InvalidTransitionError when the pair is not in the table.
func Transition(from Status, ev Event) (Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, &InvalidTransitionError{From: from, Event: ev}
	}
	return to, nil
}

// Apply moves t through event ev. On failure the status is left unchanged.
func (t *Transaction) Apply(ev Event) error {
	to, err := Transition(t.Status, ev)
	if err != nil {
		return &InvalidTransitionError{
			AssetManagerID: t.AssetManagerID,
			TransactionID:  t.TransactionID,
			From:           t.Status,
			Event:          ev,
		}
	}
	t.Status = to
	return nil
}

// Supersede returns the history record of prev once next replaces it: when
// next is an amendment, prev is stamped Superseded. Repositories call it when
// they store a new version over an old one.
func Supersede(prev, next *Transaction) *Transaction {
	if next.Status != Amended {
		return prev
	}
	old := prev.Clone()
	if err := old.Apply(EventSupersede); err != nil {
		// prev was already frozen, keep it as is
		return prev
	}
	return old
}
