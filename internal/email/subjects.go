package email

const (
	subjectBookingCreatedFmt = "New booking: %s on %s"
)
