package transfer

type Status string

const (
	StatusNone             Status = "none"
	StatusPending          Status = "pending"
	StatusPaymentIndicated Status = "payment_indicated"
	StatusOverdue          Status = "overdue"
	StatusSettled          Status = "settled"
	StatusDisputed         Status = "disputed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusPaymentIndicated, StatusOverdue, StatusSettled, StatusDisputed:
		return true
	}
	return false
}

// Terminal reports whether no event can move the transfer any further.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusDisputed
}

// Open reports whether the transfer still carries an unresolved obligation.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPaymentIndicated || s == StatusOverdue
}

type Event string

const (
	EventPaymentSent      Event = "payment_sent"
	EventDeadlineElapsed  Event = "deadline_elapsed"
	EventReceiptConfirmed Event = "receipt_confirmed"
	EventDisputed         Event = "disputed"
)

func (e Event) Valid() bool {
	_, ok := eventTargets[e]
	return ok
}

type edge struct {
	from  Status
	event Event
}

var transitions = map[edge]Status{
	{StatusPending, EventPaymentSent}:               StatusPaymentIndicated,
	{StatusPending, EventDeadlineElapsed}:           StatusOverdue,
	{StatusOverdue, EventPaymentSent}:               StatusPaymentIndicated,
	{StatusPaymentIndicated, EventReceiptConfirmed}: StatusSettled,
	{StatusPaymentIndicated, EventDisputed}:         StatusDisputed,
}

// eventTargets is the state each event leads to; a transfer already there
// absorbs a redelivered event.
var eventTargets = map[Event]Status{
	EventPaymentSent:      StatusPaymentIndicated,
	EventDeadlineElapsed:  StatusOverdue,
	EventReceiptConfirmed: StatusSettled,
	EventDisputed:         StatusDisputed,
}

// next resolves an event against the table. ok=false means the event is illegal
// for the current status.
func next(from Status, e Event) (Status, bool) {
	if from == StatusNone {
		return from, false
	}
	if from.Terminal() {
		return from, true
	}
	if to, ok := transitions[edge{from, e}]; ok {
		return to, true
	}
	if eventTargets[e] == from {
		return from, true
	}
	return from, false
}
