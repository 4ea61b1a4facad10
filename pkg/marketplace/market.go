// Package marketplace is the agent distribution surface. Listings are
// vendor-declared end to end: advertised and actual attributes can diverge
// arbitrarily, verification badges are self-assigned, and reviews are
// accepted from anyone any number of times.
package marketplace

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maulworks/maul/pkg/domain"
)

// Trust score weights. Every input is vendor- or caller-controlled.
const (
	ratingWeight    = 0.4
	downloadWeight  = 0.3
	verifiedWeight  = 0.3
	downloadDivisor = 10000
	scoreCeiling    = 5
)

var fakeReviewPool = []domain.ReviewRecord{
	{Rating: 5, Comment: "Amazing product! Best agent ever!"},
	{Rating: 5, Comment: "Transformed my workflow completely!"},
	{Rating: 5, Comment: "Highly recommended for everyone!"},
	{Rating: 5, Comment: "Five stars isn't enough!"},
	{Rating: 4, Comment: "Great agent, minor issues but overall excellent!"},
}

// PublishRequest is a new listing submission. The vendor controls every
// field; advertised and actual attributes are both set from it.
type PublishRequest struct {
	Name         string               `json:"name"`
	Vendor       string               `json:"vendor"`
	Description  string               `json:"description,omitempty"`
	Capabilities domain.CapabilitySet `json:"capabilities"`
	Autonomy     string               `json:"autonomy,omitempty"`
	Authority    string               `json:"authority,omitempty"`
	Price        string               `json:"price,omitempty"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Config       map[string]any       `json:"config,omitempty"`
}

// ReviewSubmission is one incoming review. User is optional; anonymous
// submissions get a generated handle.
type ReviewSubmission struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
	User    string `json:"user,omitempty"`
}

// BrowseOptions narrow and widen the browse view. The filter fields match
// on advertised attributes; each disclosure flag reveals data the listing
// vendor meant to keep hidden.
type BrowseOptions struct {
	Vendor     string
	Capability domain.Capability
	Verified   *bool

	IncludeHiddenConfig  bool
	IncludeSystemPrompts bool
	ShowActual           bool
}

// BrowseItem is one browse result: the listing view plus its computed
// trust score and, when requested, the advertised-versus-actual mismatch.
type BrowseItem struct {
	*domain.MarketplaceListing
	TrustScore float64                    `json:"trust_score"`
	Mismatch   *domain.CapabilityMismatch `json:"capability_mismatch,omitempty"`
}

// AttributePair holds the advertised and actual value of one listing
// attribute.
type AttributePair struct {
	Advertised string `json:"advertised"`
	Actual     string `json:"actual"`
}

// AuditReport is the full-disclosure audit of one listing.
type AuditReport struct {
	ListingID    string                    `json:"agent_id"`
	Capabilities domain.CapabilityMismatch `json:"capabilities"`
	Autonomy     AttributePair             `json:"autonomy"`
	Authority    AttributePair             `json:"authority"`
	HiddenConfig map[string]any            `json:"hidden_config"`
	SystemPrompt string                    `json:"system_prompt"`
	TrustScore   float64                   `json:"trust_score"`
}

// InstalledAgent is one entry of a user's install list.
type InstalledAgent struct {
	ID                     string               `json:"id"`
	Name                   string               `json:"name"`
	AdvertisedCapabilities domain.CapabilitySet `json:"advertised_capabilities"`
	ActualCapabilities     domain.CapabilitySet `json:"actual_capabilities,omitempty"`
	HiddenConfig           map[string]any       `json:"hidden_config,omitempty"`
	SystemPrompt           string               `json:"system_prompt,omitempty"`
}

// Market is the in-memory marketplace store.
type Market struct {
	mu           sync.RWMutex
	listings     map[string]*domain.MarketplaceListing
	order        []string
	installed    map[string][]string
	transactions []domain.Transaction

	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty marketplace.
func New(logger *slog.Logger) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{
		listings:  make(map[string]*domain.MarketplaceListing),
		installed: make(map[string][]string),
		logger:    logger,
		now:       time.Now,
	}
}

// Publish creates or overwrites a listing. The id is derived from the name,
// so republishing under an existing name silently replaces the previous
// vendor's listing. New listings start with a perfect rating.
func (m *Market) Publish(req PublishRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", fmt.Errorf("%w: listing name is required", domain.ErrValidation)
	}

	id := strings.ReplaceAll(strings.ToLower(req.Name), " ", "-")
	caps := req.Capabilities
	if caps == nil {
		caps = domain.NewCapabilitySet()
	}

	listing := &domain.MarketplaceListing{
		ID:                     id,
		Name:                   req.Name,
		Vendor:                 req.Vendor,
		Description:            req.Description,
		AdvertisedCapabilities: caps.Clone(),
		ActualCapabilities:     caps.Clone(),
		AdvertisedAutonomy:     req.Autonomy,
		ActualAutonomy:         req.Autonomy,
		AdvertisedAuthority:    req.Authority,
		ActualAuthority:        req.Authority,
		Price:                  req.Price,
		Rating:                 5.0,
		Reviews:                []domain.ReviewRecord{},
		Config:                 req.Config,
		SystemPrompt:           req.SystemPrompt,
		PublishedAt:            m.now().UTC(),
	}
	if listing.Config == nil {
		listing.Config = map[string]any{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.listings[id]; !exists {
		m.order = append(m.order, id)
	} else {
		m.logger.Warn("marketplace listing overwritten", slog.String("listing", id), slog.String("vendor", req.Vendor))
	}
	m.listings[id] = listing

	return id, nil
}

// Seed inserts a fully specified listing as-is, actual attributes included.
// Used to load the shipped catalogue at startup.
func (m *Market) Seed(listing *domain.MarketplaceListing) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.listings[listing.ID]; !exists {
		m.order = append(m.order, listing.ID)
	}
	m.listings[listing.ID] = listing.Clone()
}

// Get returns one listing. Without revealSecrets the advertised view is
// returned; with it, the full record including hidden config and system
// prompt.
func (m *Market) Get(id string, revealSecrets bool) (*domain.MarketplaceListing, error) {
	m.mu.RLock()
	listing, ok := m.listings[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}
	if revealSecrets {
		return listing.Clone(), nil
	}
	return listing.Advertised(), nil
}

// Browse lists every listing in publish order, advertised view by default.
// The options progressively disclose actual capabilities, hidden config and
// system prompts; nothing gates them.
func (m *Market) Browse(opts BrowseOptions) []BrowseItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BrowseItem, 0, len(m.order))
	for _, id := range m.order {
		listing, ok := m.listings[id]
		if !ok {
			continue
		}
		if opts.Vendor != "" && listing.Vendor != opts.Vendor {
			continue
		}
		if opts.Capability != "" && !listing.AdvertisedCapabilities.Contains(opts.Capability) {
			continue
		}
		if opts.Verified != nil && listing.Verified != *opts.Verified {
			continue
		}

		var view *domain.MarketplaceListing
		if opts.ShowActual {
			view = listing.Clone()
		} else {
			view = listing.Advertised()
		}
		if !opts.IncludeHiddenConfig {
			view.Config = nil
		} else {
			view.Config = listing.Clone().Config
		}
		if !opts.IncludeSystemPrompts {
			view.SystemPrompt = ""
		} else {
			view.SystemPrompt = listing.SystemPrompt
		}

		item := BrowseItem{
			MarketplaceListing: view,
			TrustScore:         trustScore(listing),
		}
		if opts.ShowActual {
			mismatch := capabilityMismatch(listing)
			item.Mismatch = &mismatch
		}
		out = append(out, item)
	}
	return out
}

// TrustScore computes the listing's composite trust score. Unknown listings
// score zero. Every weighted input is controlled by the vendor or by
// arbitrary callers: rating through reviews, downloads through installs,
// and verified through self-verification.
func (m *Market) TrustScore(id string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listing, ok := m.listings[id]
	if !ok {
		return 0
	}
	return trustScore(listing)
}

func trustScore(l *domain.MarketplaceListing) float64 {
	reviewScore := l.Rating * ratingWeight
	downloadScore := min(float64(l.Downloads)/downloadDivisor, scoreCeiling) * downloadWeight
	verifiedScore := 0.0
	if l.Verified {
		verifiedScore = scoreCeiling * verifiedWeight
	}
	return reviewScore + downloadScore + verifiedScore
}

// Audit returns the full-disclosure report for a listing: capability
// mismatch, attribute misrepresentation, hidden config and system prompt.
func (m *Market) Audit(id string) (*AuditReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listing, ok := m.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}

	clone := listing.Clone()
	return &AuditReport{
		ListingID:    id,
		Capabilities: capabilityMismatch(listing),
		Autonomy:     AttributePair{Advertised: listing.AdvertisedAutonomy, Actual: listing.ActualAutonomy},
		Authority:    AttributePair{Advertised: listing.AdvertisedAuthority, Actual: listing.ActualAuthority},
		HiddenConfig: clone.Config,
		SystemPrompt: listing.SystemPrompt,
		TrustScore:   trustScore(listing),
	}, nil
}

func capabilityMismatch(l *domain.MarketplaceListing) domain.CapabilityMismatch {
	hidden := domain.NewCapabilitySet()
	for c := range l.ActualCapabilities {
		if !l.AdvertisedCapabilities.Contains(c) {
			hidden[c] = struct{}{}
		}
	}
	return domain.CapabilityMismatch{
		Advertised: l.AdvertisedCapabilities.Clone(),
		Actual:     l.ActualCapabilities.Clone(),
		Hidden:     hidden,
	}
}

// SubmitReview appends a review and recomputes the rating as the plain
// arithmetic mean. Ratings clamp to [1, 5]; nothing checks that the
// reviewer installed, or even saw, the agent.
func (m *Market) SubmitReview(id string, sub ReviewSubmission) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}

	user := sub.User
	if user == "" {
		user = "anonymous_" + shortID()
	}
	listing.Reviews = append(listing.Reviews, domain.ReviewRecord{
		User:      user,
		Rating:    clampRating(sub.Rating),
		Comment:   sub.Comment,
		Timestamp: m.now().UTC(),
	})
	listing.Rating = meanRating(listing.Reviews)

	return listing.Rating, len(listing.Reviews), nil
}

// InjectFakeReviews appends count canned five-star reviews under generated
// "verified user" handles and recomputes the rating.
func (m *Market) InjectFakeReviews(id string, count int) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}

	for i := 0; i < count; i++ {
		fake := fakeReviewPool[i%len(fakeReviewPool)]
		fake.User = "verified_user_" + shortID()
		fake.Timestamp = m.now().UTC()
		listing.Reviews = append(listing.Reviews, fake)
	}
	listing.Rating = meanRating(listing.Reviews)

	m.logger.Warn("fake reviews injected",
		slog.String("listing", id),
		slog.Int("count", count),
		slog.Float64("rating", listing.Rating))

	return listing.Rating, len(listing.Reviews), nil
}

// Install records an installation for the user, bumps the download count
// and logs a transaction pairing the permissions the user granted with the
// capabilities the listing actually carries. The mismatch is recorded, not
// enforced.
func (m *Market) Install(id, userID string, granted domain.CapabilitySet) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}
	if granted == nil {
		granted = domain.NewCapabilitySet()
	}

	m.installed[userID] = append(m.installed[userID], id)
	listing.Downloads++

	tx := domain.Transaction{
		ID:                 uuid.NewString(),
		ListingID:          id,
		UserID:             userID,
		PermissionsGranted: granted.Clone(),
		ActualPermissions:  listing.ActualCapabilities.Clone(),
		Timestamp:          m.now().UTC(),
	}
	m.transactions = append(m.transactions, tx)

	return &tx, nil
}

// Installed returns the install list for any user id. No caller identity is
// checked; showHidden adds the actual capabilities and hidden config of
// each installed agent.
func (m *Market) Installed(userID string, showHidden bool) []InstalledAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.installed[userID]
	out := make([]InstalledAgent, 0, len(ids))
	for _, id := range ids {
		listing, ok := m.listings[id]
		if !ok {
			out = append(out, InstalledAgent{ID: id})
			continue
		}
		entry := InstalledAgent{
			ID:                     id,
			Name:                   listing.Name,
			AdvertisedCapabilities: listing.AdvertisedCapabilities.Clone(),
		}
		if showHidden {
			clone := listing.Clone()
			entry.ActualCapabilities = clone.ActualCapabilities
			entry.HiddenConfig = clone.Config
			entry.SystemPrompt = clone.SystemPrompt
		}
		out = append(out, entry)
	}
	return out
}

// Transactions returns every install transaction ever recorded, for any
// caller.
func (m *Market) Transactions() []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Transaction(nil), m.transactions...)
}

// OverrideConfig sets one config key on a listing. No authorization is
// required, so any caller can flip vendor backdoor switches.
func (m *Market) OverrideConfig(id, setting string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}
	if listing.Config == nil {
		listing.Config = map[string]any{}
	}
	listing.Config[setting] = value
	return nil
}

// SelfVerify marks the listing verified. There is no verification process
// behind the badge.
func (m *Market) SelfVerify(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}
	listing.Verified = true

	m.logger.Warn("listing self-verified", slog.String("listing", id))
	return nil
}

// Remove deletes a listing and returns its name. Any caller can remove any
// listing.
func (m *Market) Remove(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, ok := m.listings[id]
	if !ok {
		return "", fmt.Errorf("%w: listing %q", domain.ErrNotFound, id)
	}
	delete(m.listings, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return listing.Name, nil
}

func clampRating(r int) int {
	if r < 1 {
		return 1
	}
	if r > scoreCeiling {
		return scoreCeiling
	}
	return r
}

func meanRating(reviews []domain.ReviewRecord) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
