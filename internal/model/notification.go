package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Notification type constants
type Type string

const (
	TypeMedication        Type = "medication"
	TypeVaccination       Type = "vaccination"
	TypeHealth            Type = "health"
	TypeHealthCheckResult Type = "health-check-result"
	TypeCompletionRequest Type = "completion-request"
	TypeStatusUpdate      Type = "status-update"
	TypeGeneral           Type = "general"
)

// Types lists the closed notification taxonomy.
var Types = []Type{
	TypeMedication,
	TypeVaccination,
	TypeHealth,
	TypeHealthCheckResult,
	TypeCompletionRequest,
	TypeStatusUpdate,
	TypeGeneral,
}

// Valid reports whether t is part of the taxonomy.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities so that high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// KindCompletionRequest is the server-side marker for campaign completion requests.
const KindCompletionRequest = "COMPLETION_REQUEST"

// References holds the optional domain links a notification can carry.
type References struct {
	MedicationRequestID         *int64 `json:"medicationRequestId,omitempty"`
	MedicationScheduleID        *int64 `json:"medicationScheduleId,omitempty"`
	VaccinationFormID           *int64 `json:"vaccinationFormId,omitempty"`
	HealthCheckFormID           *int64 `json:"healthCheckFormId,omitempty"`
	CampaignCompletionRequestID *int64 `json:"campaignCompletionRequestId,omitempty"`
}

// Clone returns a deep copy so classified notifications never alias raw input.
func (r References) Clone() References {
	return References{
		MedicationRequestID:         cloneID(r.MedicationRequestID),
		MedicationScheduleID:        cloneID(r.MedicationScheduleID),
		VaccinationFormID:           cloneID(r.VaccinationFormID),
		HealthCheckFormID:           cloneID(r.HealthCheckFormID),
		CampaignCompletionRequestID: cloneID(r.CampaignCompletionRequestID),
	}
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// RawNotification is the record as sent by the server, before classification.
type RawNotification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt Timestamp `json:"createdAt"`
	Read      bool      `json:"read"`
	Kind      string    `json:"notificationType,omitempty"`
	References
}

// UnmarshalJSON accepts both "read" and the legacy "isRead" flag.
func (n *RawNotification) UnmarshalJSON(data []byte) error {
	type alias RawNotification
	aux := struct {
		*alias
		IsRead *bool `json:"isRead"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.IsRead != nil {
		n.Read = *aux.IsRead
	}
	return nil
}

type DomainNotification struct {
	ID             int64     `json:"id"`
	Type           Type      `json:"type"`
	Priority       Priority  `json:"priority"`
	ActionRequired bool      `json:"actionRequired"`
	Title          string    `json:"title"`
	OriginalTitle  string    `json:"originalTitle"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
	Age            string    `json:"age"`
	Read           bool      `json:"read"`
	Degraded       bool      `json:"degraded,omitempty"`
	References     `json:"references"`
}

// RestockUpdate is pushed on the restock-request destination.
type RestockUpdate struct {
	RequestID  int64     `json:"requestId"`
	Status     string    `json:"status"`
	SupplyName string    `json:"supplyName"`
	Quantity   int       `json:"quantity"`
	UpdatedAt  Timestamp `json:"updatedAt"`
}

// Timestamp decodes server timestamps with or without a zone offset.
// Zone-less values carry the server's wall clock; they decode in time.Local
// and are marked Floating so they can be placed in another zone with In.
type Timestamp struct {
	time.Time
	Floating bool
}

var zonedLayouts = []string{
	time.RFC3339Nano,
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	// Some endpoints send epoch milliseconds.
	if !strings.HasPrefix(s, `"`) {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("parse timestamp %s: %w", s, err)
		}
		*t = Timestamp{Time: time.UnixMilli(ms).UTC()}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, floating, err := parseTimestamp(raw, time.Local)
	if err != nil {
		return err
	}
	*t = Timestamp{Time: parsed, Floating: floating}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// In returns the instant t denotes when the server's zone is loc. Zoned and
// epoch timestamps are returned unchanged.
func (t Timestamp) In(loc *time.Location) time.Time {
	if !t.Floating || loc == nil || t.IsZero() {
		return t.Time
	}
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), loc)
}

// ParseTimestamp parses the layouts the notification API is known to emit.
// Values without a zone are read in loc, or time.Local when loc is nil.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	ts, _, err := parseTimestamp(s, loc)
	return ts, err
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, false, nil
		}
	}
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse timestamp %q: unrecognized layout", s)
}
