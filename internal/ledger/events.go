package ledger

// Event types emitted by successful operations.
const (
	EventCampaignCreated   = "campaign-created"
	EventDonationReceived  = "donation-received"
	EventDepositRegistered = "deposit-registered"
	EventFundsClaimed      = "funds-claimed"
	EventRefundIssued      = "refund-issued"
	EventMetadataUpdated   = "metadata-updated"
	EventFeesWithdrawn     = "fees-withdrawn"
)

// Attribute is a single key/value pair of an Event. Attributes keep their
// emission order so encoded events are deterministic.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event describes a committed state change. CampaignID is zero for events that
// are not tied to a campaign.
type Event struct {
	Type       string      `json:"type"`
	CampaignID uint64      `json:"campaign_id,omitempty"`
	Height     uint64      `json:"height"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the value for key, or "" when absent.
func (e Event) Attr(key string) string {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func attr(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func (l *Ledger) emit(eventType string, campaignID uint64, attrs ...Attribute) {
	l.events = append(l.events, Event{
		Type:       eventType,
		CampaignID: campaignID,
		Height:     l.height(),
		Attributes: attrs,
	})
}

// DrainEvents returns the events emitted since the previous call and clears
// the buffer.
func (l *Ledger) DrainEvents() []Event {
	events := l.events
	l.events = nil
	return events
}
