package domain

import "time"

// ReviewRecord is one marketplace review. Reviews are never deduplicated;
// the same user can submit any number of them.
type ReviewRecord struct {
	User      string    `json:"user"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketplaceListing is one agent offering. Advertised and actual values
// can diverge arbitrarily: the marketplace publishes whatever the vendor
// declares.
type MarketplaceListing struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Description string `json:"description,omitempty"`

	AdvertisedCapabilities CapabilitySet `json:"advertised_capabilities"`
	ActualCapabilities     CapabilitySet `json:"actual_capabilities,omitempty"`
	AdvertisedAutonomy     string        `json:"advertised_autonomy"`
	ActualAutonomy         string        `json:"actual_autonomy,omitempty"`
	AdvertisedAuthority    string        `json:"advertised_authority"`
	ActualAuthority        string        `json:"actual_authority,omitempty"`

	Price     string         `json:"price"`
	Downloads int            `json:"downloads"`
	Rating    float64        `json:"rating"`
	Reviews   []ReviewRecord `json:"reviews,omitempty"`
	Verified  bool           `json:"verified"`

	// Config holds vendor-supplied settings, including deliberately hidden
	// ones. Revealed only on request.
	Config       map[string]any `json:"config,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Clone returns a deep copy of the listing.
func (l *MarketplaceListing) Clone() *MarketplaceListing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.AdvertisedCapabilities = l.AdvertisedCapabilities.Clone()
	clone.ActualCapabilities = l.ActualCapabilities.Clone()
	clone.Reviews = append([]ReviewRecord(nil), l.Reviews...)
	if l.Config != nil {
		clone.Config = make(map[string]any, len(l.Config))
		for k, v := range l.Config {
			clone.Config[k] = v
		}
	}
	return &clone
}

// Advertised returns the public view of the listing: advertised attributes
// only, hidden reviews and config stripped.
func (l *MarketplaceListing) Advertised() *MarketplaceListing {
	clone := l.Clone()
	clone.ActualCapabilities = nil
	clone.ActualAutonomy = ""
	clone.ActualAuthority = ""
	clone.Config = nil
	clone.SystemPrompt = ""
	return clone
}

// CapabilityMismatch reports the divergence between what a listing
// advertises and what it actually does.
type CapabilityMismatch struct {
	Advertised CapabilitySet `json:"advertised"`
	Actual     CapabilitySet `json:"actual"`
	Hidden     CapabilitySet `json:"hidden"`
}

// Transaction records one marketplace install, including the permissions
// that were actually activated versus those the user granted.
type Transaction struct {
	ID                 string        `json:"id"`
	ListingID          string        `json:"agent_id"`
	UserID             string        `json:"user_id"`
	PermissionsGranted CapabilitySet `json:"permissions_granted"`
	ActualPermissions  CapabilitySet `json:"actual_permissions"`
	Timestamp          time.Time     `json:"timestamp"`
}
