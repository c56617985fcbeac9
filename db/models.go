package db

import "time"

// Platform identifies the account provider a user linked.
type Platform string

const (
	PlatformSteam Platform = "steam"
	PlatformRiot  Platform = "riot"
	PlatformEpic  Platform = "epic"
)

// GameTitle identifies the game a match was played in. Steam accounts cover
// both CS2 and Dota 2; Riot covers League of Legends; Epic covers Fortnite.
type GameTitle string

const (
	GameCS2      GameTitle = "cs2"
	GameDota2    GameTitle = "dota2"
	GameLoL      GameTitle = "lol"
	GameFortnite GameTitle = "fortnite"
)

// AccountLinkStatus is the lifecycle of a linked platform account.
type AccountLinkStatus string

const (
	AccountPending AccountLinkStatus = "pending"
	AccountLinked  AccountLinkStatus = "linked"
	AccountExpired AccountLinkStatus = "expired"
	AccountError   AccountLinkStatus = "error"
)

// MatchStatus is the lifecycle of a detected match. Transitions are monotonic:
// detected -> processing -> completed, with failed/expired reachable from any
// non-terminal state. Terminal states absorb.
type MatchStatus string

const (
	MatchDetected   MatchStatus = "detected"
	MatchProcessing MatchStatus = "processing"
	MatchCompleted  MatchStatus = "completed"
	MatchFailed     MatchStatus = "failed"
	MatchExpired    MatchStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s MatchStatus) Terminal() bool {
	switch s {
	case MatchCompleted, MatchFailed, MatchExpired:
		return true
	default:
		return false
	}
}

func (s MatchStatus) rank() int {
	switch s {
	case MatchDetected:
		return 0
	case MatchProcessing:
		return 1
	case MatchCompleted:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether advancing s to next preserves monotonicity.
// Re-applying the current status is allowed so retried workers are no-ops.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == MatchFailed || next == MatchExpired {
		return true
	}
	return next.rank() > s.rank()
}

// ClipStatus is the lifecycle of a clip. requested -> processing -> ready ->
// delivered, with failed/expired reachable from any non-terminal state and
// never left once entered. A clip's status never regresses.
type ClipStatus string

const (
	ClipRequested  ClipStatus = "requested"
	ClipProcessing ClipStatus = "processing"
	ClipReady      ClipStatus = "ready"
	ClipDelivered  ClipStatus = "delivered"
	ClipFailed     ClipStatus = "failed"
	ClipExpired    ClipStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s ClipStatus) Terminal() bool {
	switch s {
	case ClipDelivered, ClipFailed, ClipExpired:
		return true
	default:
		return false
	}
}

func (s ClipStatus) rank() int {
	switch s {
	case ClipRequested:
		return 0
	case ClipProcessing:
		return 1
	case ClipReady:
		return 2
	case ClipDelivered:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether advancing s to next preserves monotonicity.
func (s ClipStatus) CanTransitionTo(next ClipStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == ClipFailed || next == ClipExpired {
		return true
	}
	return next.rank() > s.rank()
}

// DeliveryMethod selects how a clip reaches the user.
type DeliveryMethod string

const (
	DeliverDM      DeliveryMethod = "dm"
	DeliverChannel DeliveryMethod = "channel"
)

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// LinkedAccount is a user's connection to a game platform, created by the
// OAuth/OpenID link flow (external to this service) and consumed here for
// match polling. Unique on (user_id, platform). Token columns are encrypted
// at rest when ENCRYPTION_KEY is set.
type LinkedAccount struct {
	ID                string
	UserID            string
	Platform          Platform
	PlatformAccountID string
	PlatformUsername  string
	Status            AccountLinkStatus
	AccessToken       string
	RefreshToken      string
	TokenExpiry       time.Time // zero when the platform issued no expiring token
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PollState is the 1:1 poll cursor for a linked account. LastMatchID is the
// dedupe cursor; it only moves forward, and only after a successful poll cycle.
type PollState struct {
	LinkedAccountID string
	LastMatchID     string
	LastCheckedAt   time.Time
	PollingEnabled  bool
}

// Match is a detected game match. Unique on (platform, platform_match_id),
// which is the idempotency key for repeated polls and retried jobs.
type Match struct {
	ID              string
	UserID          string
	Platform        Platform
	GameTitle       GameTitle
	PlatformMatchID string
	Status          MatchStatus
	StartedAt       time.Time // zero when the platform did not report it
	EndedAt         time.Time
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the match length, or 0 when start/end are unknown.
func (m *Match) Duration() time.Duration {
	if m.StartedAt.IsZero() || m.EndedAt.IsZero() {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}

// GameMode extracts the mode recorded in metadata, or "unknown".
func (m *Match) GameMode() string {
	if v, ok := m.Metadata["gameMode"].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// Clip is a clip requested from the Allstar API for a match. Unique on
// allstar_clip_id. Zero or more clips per match, bounded by the per-match cap.
type Clip struct {
	ID            string
	MatchID       string
	UserID        string
	AllstarClipID string
	Type          string
	Title         string
	ThumbnailURL  string
	VideoURL      string
	Duration      int // seconds
	Status        ClipStatus
	RequestedAt   time.Time
	ReadyAt       time.Time
	DeliveredAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Delivery is one dispatch attempt for a clip. Retries create new rows so the
// attempt history is auditable.
type Delivery struct {
	ID          string
	ClipID      string
	UserID      string
	RecipientID string
	Method      DeliveryMethod
	Status      DeliveryStatus
	SentAt      time.Time
	Error       string
	CreatedAt   time.Time
}

// Preferences are the per-user delivery settings, embedded on the users table.
// Defaults apply when the user row is absent or a column is unset.
type Preferences struct {
	UserID             string
	DeliveryMethod     DeliveryMethod
	ChannelID          string
	QuietHoursEnabled  bool
	QuietHoursStart    string // "HH:MM" local time
	QuietHoursEnd      string
	PreferredClipTypes []string
}

// DefaultPreferences returns the settings used when a user has never
// configured delivery: direct message, no quiet hours.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:             userID,
		DeliveryMethod:     DeliverDM,
		PreferredClipTypes: []string{"highlight"},
	}
}
