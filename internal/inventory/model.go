package inventory

// Line is one product/quantity pair to reserve.
type Line struct {
	ProductID   uint
	ProductName string
	Quantity    int
}

// LowStock reports a product left at or below its restock threshold by a reservation.
type LowStock struct {
	ProductID   uint
	ProductName string
	Remaining   int
	Threshold   int
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)
