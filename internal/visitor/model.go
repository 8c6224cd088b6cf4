// Package visitor keeps per-visitor session state. Each beacon is applied as
// one atomic upsert, and the online view is recomputed from stored state on
// every read.
package visitor

import (
	"errors"
	"time"

	"visitor-beacon-api/internal/classify"
	"visitor-beacon-api/internal/geo"
)

var (
	ErrMissingVisitorID = errors.New("visitorId is required")
	ErrInvalidEventType = errors.New(`type must be "pageview" or "heartbeat"`)
	ErrNotFound         = errors.New("visitor not found")
)

type EventType string

const (
	EventPageview  EventType = "pageview"
	EventHeartbeat EventType = "heartbeat"
)

// ParseEventType defaults an empty type to pageview.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case "", EventPageview:
		return EventPageview, nil
	case EventHeartbeat:
		return EventHeartbeat, nil
	default:
		return "", ErrInvalidEventType
	}
}

// increment is how much an event adds to the pageview counter.
func (t EventType) increment() int64 {
	if t == EventPageview {
		return 1
	}
	return 0
}

// Beacon is a raw inbound event as received over HTTP.
type Beacon struct {
	VisitorID   string
	CurrentPage string
	Referrer    string
	Type        string
	IP          string
	UserAgent   string
}

// Event is a beacon after classification and geo enrichment, ready to be
// applied to the store.
type Event struct {
	VisitorID   string
	Type        EventType
	IP          string
	UserAgent   string
	CurrentPage string
	Referrer    string
	Agent       classify.UserAgent
	Source      classify.Source
	UTM         classify.UTM
	Location    geo.Location
}

// Visitor is the stored state of one visitor. Attribution fields are
// first-touch: written by the first event and never changed afterwards.
// Empty strings stand for absent values.
type Visitor struct {
	ID          string `json:"id"`
	IP          string `json:"ip,omitempty"`
	UserAgent   string `json:"userAgent"`
	DeviceType  string `json:"deviceType"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CurrentPage string `json:"currentPage"`

	Referrer       string `json:"referrer,omitempty"`
	ReferrerSource string `json:"referrerSource,omitempty"`
	ReferrerDomain string `json:"referrerDomain,omitempty"`
	UTMSource      string `json:"utmSource,omitempty"`
	UTMMedium      string `json:"utmMedium,omitempty"`
	UTMCampaign    string `json:"utmCampaign,omitempty"`
	UTMContent     string `json:"utmContent,omitempty"`
	UTMTerm        string `json:"utmTerm,omitempty"`

	PageViews       int64     `json:"pageViews"`
	Bounced         bool      `json:"bounced"`
	FirstSeen       time.Time `json:"firstSeen"`
	SessionStart    time.Time `json:"sessionStart"`
	LastSeen        time.Time `json:"lastSeen"`
	SessionDuration int64     `json:"sessionDuration"`
	IsOnline        bool      `json:"isOnline"`
}

// Online is a point-in-time count of visitors seen within the online window.
type Online struct {
	Online    int64     `json:"online"`
	Desktop   int64     `json:"desktop"`
	Mobile    int64     `json:"mobile"`
	Tablet    int64     `json:"tablet"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of Service.Ingest. Ignored is set for bot traffic,
// in which case Visitor is nil.
type Result struct {
	Ignored bool
	Visitor *Visitor
}
