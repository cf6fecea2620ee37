package cadence

// LeadStatusInCadence is written to a lead when it is enrolled.
const LeadStatusInCadence = "in_cadence"

// Lead is a contact pursued through outreach. It is owned by the lead store and read-only here,
// except for Status.
type Lead struct {
	ID              string
	Name            string
	Company         string
	Status          string
	Email           string
	Phone           string
	WhatsApp        string
	LinkedInURL     string
	InstagramHandle string
}

// Contacts returns the lead's non-empty contact identifiers keyed by channel.
func (l Lead) Contacts() map[Channel]string {
	contacts := make(map[Channel]string, 5)
	add := func(ch Channel, value string) {
		if value != "" {
			contacts[ch] = value
		}
	}
	add(ChannelEmail, l.Email)
	add(ChannelPhone, l.Phone)
	add(ChannelWhatsApp, l.WhatsApp)
	add(ChannelLinkedIn, l.LinkedInURL)
	add(ChannelInstagram, l.InstagramHandle)

	return contacts
}

// LeadSummary is the lead view returned by Enroll.
type LeadSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}

// Summary returns the lead summary.
func (l Lead) Summary() LeadSummary {
	return LeadSummary{ID: l.ID, Name: l.Name, Company: l.Company}
}
