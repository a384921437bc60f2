package enquiries

// Status is a stage of the sales and operations pipeline.
type Status string

const (
	StatusEnquiry            Status = "enquiry"
	StatusItineraryCreation  Status = "itinerary_creation"
	StatusCustomerFeedback   Status = "customer_feedback"
	StatusItineraryConfirmed Status = "itinerary_confirmed"
	StatusDMCQuotation       Status = "dmc_quotation"
	StatusPriceFinalization  Status = "price_finalization"
	StatusBookingRequest     Status = "booking_request"
	StatusCancelled          Status = "cancelled"
	StatusBookingProgress    Status = "booking_progress"
	StatusPaymentForex       Status = "payment_forex"
	StatusTripInProgress     Status = "trip_in_progress"
	StatusCompleted          Status = "completed"
)

// boardOrder is the column order of the status board.
var boardOrder = []Status{
	StatusEnquiry,
	StatusItineraryCreation,
	StatusCustomerFeedback,
	StatusItineraryConfirmed,
	StatusDMCQuotation,
	StatusPriceFinalization,
	StatusBookingRequest,
	StatusCancelled,
	StatusBookingProgress,
	StatusPaymentForex,
	StatusTripInProgress,
	StatusCompleted,
}

// pipeline is the linear happy path; cancelled sits outside it.
var pipeline = []Status{
	StatusEnquiry,
	StatusItineraryCreation,
	StatusCustomerFeedback,
	StatusItineraryConfirmed,
	StatusDMCQuotation,
	StatusPriceFinalization,
	StatusBookingRequest,
	StatusBookingProgress,
	StatusPaymentForex,
	StatusTripInProgress,
	StatusCompleted,
}

var labels = map[Status]string{
	StatusEnquiry:            "Enquiry",
	StatusItineraryCreation:  "Itinerary Creation",
	StatusCustomerFeedback:   "Customer Feedback",
	StatusItineraryConfirmed: "Itinerary Confirmed",
	StatusDMCQuotation:       "DMC Quotation",
	StatusPriceFinalization:  "Price Finalization",
	StatusBookingRequest:     "Booking Request",
	StatusCancelled:          "Cancelled",
	StatusBookingProgress:    "Booking Progress",
	StatusPaymentForex:       "Payment & Forex",
	StatusTripInProgress:     "Trip In Progress",
	StatusCompleted:          "Completed",
}

var allowedNext = buildTransitions()

func buildTransitions() map[Status]map[Status]struct{} {
	t := make(map[Status]map[Status]struct{}, len(boardOrder))
	add := func(from, to Status) {
		if t[from] == nil {
			t[from] = make(map[Status]struct{})
		}
		t[from][to] = struct{}{}
	}
	for i, s := range pipeline {
		if i > 0 {
			add(s, pipeline[i-1])
		}
		if i < len(pipeline)-1 {
			add(s, pipeline[i+1])
		}
		if s != StatusCompleted {
			add(s, StatusCancelled)
		}
	}
	add(StatusCancelled, StatusEnquiry)
	return t
}

// Statuses returns all statuses in board order.
func Statuses() []Status {
	out := make([]Status, len(boardOrder))
	copy(out, boardOrder)
	return out
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Label returns the board column title for s.
func Label(s Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// CanTransition reports whether from → to is allowed without override.
// Same-status moves are always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	_, ok := allowedNext[from][to]
	return ok
}

// NextStatuses lists the statuses reachable from s without override.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, candidate := range boardOrder {
		if _, ok := allowedNext[s][candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}
