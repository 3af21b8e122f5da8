package tenant

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/glyphoxa/internal/apperr"
)

// CalendarProvider identifies which external calendar backend a tenant has
// connected.
type CalendarProvider string

const (
	CalendarProviderGoogle  CalendarProvider = "google"
	CalendarProviderOutlook CalendarProvider = "outlook"
)

// AfterHoursAction describes what the orchestrator does with a call received
// outside business hours.
type AfterHoursAction string

const (
	// AfterHoursVoicemail routes the call straight to voicemail.
	AfterHoursVoicemail AfterHoursAction = "voicemail"
	// AfterHoursForward forwards the call to FallbackNumber.
	AfterHoursForward AfterHoursAction = "forward"
)

// BusinessHours is the open/close window for a single weekday, in HH:MM
// 24-hour local time. An empty Open and Close means closed all day.
type BusinessHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// AppointmentType is a bookable service offered by the tenant.
type AppointmentType struct {
	Name          string `json:"name"`
	DurationMin   int    `json:"duration_minutes"`
	PreBufferMin  int    `json:"pre_buffer_minutes"`
	PostBufferMin int    `json:"post_buffer_minutes"`
}

// CalendarSelection identifies which connected calendar booking writes go
// to.
type CalendarSelection struct {
	Provider   CalendarProvider `json:"provider"`
	CalendarID string           `json:"calendar_id"`
}

// Routing controls call handling outside business hours.
type Routing struct {
	AfterHoursAction AfterHoursAction `json:"after_hours_action"`
	FallbackNumber   string           `json:"fallback_number"`
	VoicemailEnabled bool             `json:"voicemail_enabled"`
}

// AISettings tunes the orchestrator's conversational behavior for a tenant.
type AISettings struct {
	GreetingText       string `json:"greeting_text"`
	MaxRetries         int    `json:"max_retries"`
	RequireServiceType bool   `json:"require_service_type"`
}

// TelephonySettings holds the per-tenant telephony provider linkage used by
// the webhook ingress.
type TelephonySettings struct {
	// ProviderAuthToken signs and verifies inbound webhook requests for this
	// tenant (HMAC-SHA1 over url||sorted(body), per spec.md §6).
	ProviderAuthToken string `json:"provider_auth_token"`
}

// Config is the tenant's JSON configuration blob: business hours, bookable
// appointment types, calendar selection, after-hours routing, telephony
// linkage, and AI behavior settings. It is stored verbatim as the
// tenants.config column.
type Config struct {
	BusinessHours    map[string]BusinessHours `json:"business_hours"`
	HolidayDates     []string                 `json:"holiday_dates"`
	AppointmentTypes []AppointmentType        `json:"appointment_types"`
	Calendar         CalendarSelection        `json:"calendar"`
	Routing          Routing                  `json:"routing"`
	AI               AISettings               `json:"ai"`
	Telephony        TelephonySettings        `json:"telephony"`
}

// DefaultConfig returns the configuration assigned to a newly registered
// tenant that did not supply one.
func DefaultConfig() Config {
	return Config{
		BusinessHours: map[string]BusinessHours{
			"monday":    {Open: "09:00", Close: "17:00"},
			"tuesday":   {Open: "09:00", Close: "17:00"},
			"wednesday": {Open: "09:00", Close: "17:00"},
			"thursday":  {Open: "09:00", Close: "17:00"},
			"friday":    {Open: "09:00", Close: "17:00"},
		},
		Routing: Routing{
			AfterHoursAction: AfterHoursVoicemail,
			VoicemailEnabled: true,
		},
		AI: AISettings{
			GreetingText: "Thanks for calling, how can I help you today?",
			MaxRetries:   2,
		},
	}
}

// Validate checks the config for the invariants the registry enforces on
// register and update_config: a resolvable calendar provider when one is
// set, and internally consistent appointment types.
func (c Config) Validate() error {
	switch c.Calendar.Provider {
	case "", CalendarProviderGoogle, CalendarProviderOutlook:
	default:
		return apperr.New(apperr.KindInvalidArgument, "tenant: unknown calendar provider %q", c.Calendar.Provider)
	}
	for _, at := range c.AppointmentTypes {
		if at.Name == "" {
			return apperr.New(apperr.KindInvalidArgument, "tenant: appointment type name must not be empty")
		}
		if at.DurationMin <= 0 {
			return apperr.New(apperr.KindInvalidArgument, "tenant: appointment type %q duration must be positive", at.Name)
		}
	}
	return nil
}

// marshalConfig encodes a Config as the JSON text stored in the tenants
// table.
func marshalConfig(c Config) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("tenant: marshal config: %w", err)
	}
	return string(b), nil
}

// unmarshalConfig decodes the tenants.config column. An empty or malformed
// value decodes to the zero Config rather than erroring, since older rows
// may predate a config field added to the schema.
func unmarshalConfig(s string) Config {
	var c Config
	if s == "" {
		return c
	}
	_ = json.Unmarshal([]byte(s), &c)
	return c
}
