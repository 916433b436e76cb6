package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadbooking_backend/internal/slots"
)

// HelpText is sent for any unrecognised reply.
const HelpText = "Say YES for a call, or 1/2/3 to pick a time"

const slotLayout = "Mon 15:04"
const longLayout = "Mon 2 Jan at 15:04"

// SlotOptions renders "1) Tue 10:00 2) Tue 14:00 - reply 1 or 2".
// Keys follow list order.
func SlotOptions(candidates []slots.Candidate, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	parts := make([]string, 0, len(candidates))
	keys := make([]string, 0, len(candidates))
	for i, c := range candidates {
		key := strconv.Itoa(i + 1)
		parts = append(parts, key+") "+c.Start.In(loc).Format(slotLayout))
		keys = append(keys, key)
	}
	return strings.Join(parts, " ") + " - reply " + joinKeys(keys)
}

func joinKeys(keys []string) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return keys[0]
	default:
		return strings.Join(keys[:len(keys)-1], ", ") + " or " + keys[len(keys)-1]
	}
}

// OfferText is the SMS fallback after a missed call.
func OfferText(tenantName, leadName string, candidates []slots.Candidate, loc *time.Location) string {
	return fmt.Sprintf("Hi %s, sorry we missed you. %s can see you at: %s",
		firstName(leadName), tenantName, SlotOptions(candidates, loc))
}

// ReofferText follows a slot that was taken before it could be booked.
func ReofferText(candidates []slots.Candidate, loc *time.Location) string {
	return "Sorry, that time was just taken. New options: " + SlotOptions(candidates, loc)
}

// NudgeText is the follow-up for a lead that has not replied.
func NudgeText(tenantName string, candidates []slots.Candidate, loc *time.Location) string {
	return fmt.Sprintf("Still looking for an appointment with %s? %s", tenantName, SlotOptions(candidates, loc))
}

// ColdText is sent when no candidate could be computed.
func ColdText(tenantName, leadName string) string {
	return fmt.Sprintf("Hi %s, thanks for contacting %s. Say YES and we will call you to find a time.",
		firstName(leadName), tenantName)
}

// ChoiceRetryText answers a slot choice that could not be confirmed yet.
func ChoiceRetryText(key int) string {
	return fmt.Sprintf("We could not confirm that time just now. Please reply %d again in a few minutes.", key)
}

// OptInConfirmation acknowledges START/UNSTOP.
func OptInConfirmation(tenantName string) string {
	return fmt.Sprintf("You are subscribed to messages from %s again. Reply STOP to opt out.", tenantName)
}

// BookingConfirmation is sent to the customer after a commit.
func BookingConfirmation(tenantName, service string, slot slots.Candidate, loc *time.Location) string {
	return fmt.Sprintf("Booked: %s with %s on %s. See you then!",
		serviceLabel(service), tenantName, slot.Start.In(loc).Format(longLayout))
}

// InternalBookingText notifies the tenant's internal line.
func InternalBookingText(leadName, leadPhone, service string, slot slots.Candidate, loc *time.Location) string {
	return fmt.Sprintf("New booking: %s (%s) for %s on %s",
		nameOrPhone(leadName, leadPhone), leadPhone, serviceLabel(service), slot.Start.In(loc).Format(longLayout))
}

// ReminderText reminds the customer of an upcoming appointment.
func ReminderText(tenantName string, slot slots.Candidate, loc *time.Location) string {
	return fmt.Sprintf("Reminder: your appointment with %s is on %s.",
		tenantName, slot.Start.In(loc).Format(longLayout))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func nameOrPhone(name, phone string) string {
	if strings.TrimSpace(name) == "" {
		return phone
	}
	return strings.TrimSpace(name)
}

func serviceLabel(service string) string {
	if strings.TrimSpace(service) == "" {
		return "your appointment"
	}
	return strings.TrimSpace(service)
}
