package order

var transitions = map[Status][]Status{
	StatusPending:       {StatusConfirmed, StatusPaymentFailed, StatusCancelled},
	StatusPaymentFailed: {StatusPending, StatusConfirmed, StatusCancelled},
	StatusConfirmed:     {StatusProcessing, StatusPaymentFailed, StatusCancelled, StatusRefunded},
	StatusProcessing:    {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:       {StatusDelivered, StatusRefunded},
	StatusDelivered:     {StatusRefunded},
	StatusCancelled:     nil,
	StatusRefunded:      nil,
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCancelled || s == StatusRefunded
}

// IsFulfilment reports whether s is set by operators rather than by payments.
func IsFulfilment(s Status) bool {
	return s == StatusProcessing || s == StatusShipped || s == StatusDelivered
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", ErrUnknownStatus
	}
	return st, nil
}
