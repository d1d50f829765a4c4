package consent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consent record not found")

// historyCap bounds the append-only consent history to the most recent
// entries.
const historyCap = 50

// Consent is the single GDPR consent record per user. Essential consent is
// always true; the record is created lazily on first access.
type Consent struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	Essential      bool           `json:"essential"`
	Analytics      bool           `json:"analytics"`
	Communications bool           `json:"communications"`
	Research       bool           `json:"research"`
	History        []HistoryEntry `json:"consentHistory"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type HistoryEntry struct {
	Type      string    `json:"type"`
	Granted   bool      `json:"granted"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

type UpdateRequest struct {
	Analytics      *bool `json:"analytics"`
	Communications *bool `json:"communications"`
	Research       *bool `json:"research"`
}

func New(userID string) Consent {
	now := time.Now().UTC()

	return Consent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Essential: true,
		History:   []HistoryEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply flips the requested consent types and appends one history entry per
// changed field. Unchanged fields leave no history.
func (c *Consent) Apply(req UpdateRequest, ip, userAgent string) []HistoryEntry {
	now := time.Now().UTC()

	var changed []HistoryEntry

	record := func(typ string, current *bool, next *bool) {
		if next == nil || *next == *current {
			return
		}

		*current = *next

		changed = append(changed, HistoryEntry{
			Type:      typ,
			Granted:   *next,
			Timestamp: now,
			IP:        ip,
			UserAgent: userAgent,
		})
	}

	record("analytics", &c.Analytics, req.Analytics)
	record("communications", &c.Communications, req.Communications)
	record("research", &c.Research, req.Research)

	if len(changed) > 0 {
		c.History = append(c.History, changed...)

		if len(c.History) > historyCap {
			c.History = c.History[len(c.History)-historyCap:]
		}

		c.UpdatedAt = now
	}

	return changed
}
