package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	toolCheckAvailability = "check_availability"
	toolBookAppointment   = "book_appointment"
	toolTakeVoicemail     = "take_voicemail"

	// VoicemailSentinel is the literal result string take_voicemail returns.
	// The orchestrator treats this as a signal to end the streaming call and
	// hand off to the telephony provider's recording fallback.
	VoicemailSentinel = "TRIGGER_VOICEMAIL_FALLBACK"
)

// compiledSchema pairs a compiled validator with the raw decoded schema
// document, since [ToolDefinition.Parameters] needs the latter and
// [*jsonschema.Schema] does not expose a way to recover it.
type compiledSchema struct {
	schema *jsonschema.Schema
	doc    map[string]any
}

var (
	checkAvailabilitySchema compiledSchema
	bookAppointmentSchema   compiledSchema
	takeVoicemailSchema     compiledSchema
)

func init() {
	checkAvailabilitySchema = mustCompileSchema("check_availability.json", `{
		"type": "object",
		"required": ["start_time", "end_time"],
		"properties": {
			"start_time": {"type": "string"},
			"end_time":   {"type": "string"}
		}
	}`)

	bookAppointmentSchema = mustCompileSchema("book_appointment.json", `{
		"type": "object",
		"required": ["customer_name", "customer_phone", "customer_email", "start_time", "end_time"],
		"properties": {
			"customer_name":  {"type": "string"},
			"customer_phone": {"type": "string"},
			"customer_email": {"type": "string"},
			"start_time":     {"type": "string"},
			"end_time":       {"type": "string"},
			"description":    {"type": "string"}
		}
	}`)

	takeVoicemailSchema = mustCompileSchema("take_voicemail.json", `{
		"type": "object",
		"properties": {
			"reason": {"type": "string"}
		}
	}`)
}

// parseBookingTimestamp parses an RFC 3339 timestamp for book_appointment.
// A trailing "Z" (UTC) offset is only accepted when the tenant's own
// timezone resolves to UTC; otherwise a Z-suffixed timestamp almost always
// means the caller's stated local time was coerced to UTC by mistake, so it
// is rejected rather than silently booked at the wrong offset.
func parseBookingTimestamp(raw string, tenantLoc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	if strings.HasSuffix(raw, "Z") && tenantLoc.String() != "UTC" {
		return time.Time{}, fmt.Errorf("Z-suffixed timestamps are not accepted for a tenant outside UTC; use an explicit offset")
	}
	return t, nil
}

func mustCompileSchema(resourceName, schemaJSON string) compiledSchema {
	var doc map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("toolexec: invalid schema literal %q: %v", resourceName, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		panic(fmt.Sprintf("toolexec: failed to add schema resource %q: %v", resourceName, err))
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("toolexec: failed to compile schema %q: %v", resourceName, err))
	}
	return compiledSchema{schema: schema, doc: doc}
}

// NewCheckAvailabilityTool binds check_availability to sched, rendering busy
// intervals in the timezone tz resolves for the calling tenant.
func NewCheckAvailabilityTool(sched Scheduler, tz TenantTimezones) BuiltinTool {
	return BuiltinTool{
		Definition: ToolDefinition{
			Name:        toolCheckAvailability,
			Description: "Check whether a time range on the business calendar is free.",
			Parameters:  checkAvailabilitySchema.doc,
		},
		Schema: checkAvailabilitySchema.schema,
		Handler: func(ctx context.Context, tenantID string, argsJSON json.RawMessage) (string, error) {
			var args struct {
				StartTime string `json:"start_time"`
				EndTime   string `json:"end_time"`
			}
			if err := json.Unmarshal(argsJSON, &args); err != nil {
				return "", fmt.Errorf("toolexec: %s: %w", toolCheckAvailability, err)
			}

			start, err := time.Parse(time.RFC3339, args.StartTime)
			if err != nil {
				return fmt.Sprintf("Error: start_time %q is not a valid timestamp.", args.StartTime), nil
			}
			end, err := time.Parse(time.RFC3339, args.EndTime)
			if err != nil {
				return fmt.Sprintf("Error: end_time %q is not a valid timestamp.", args.EndTime), nil
			}

			busy, err := sched.CheckAvailability(ctx, tenantID, start, end)
			if err != nil {
				return fmt.Sprintf("Error: %s", err), nil
			}

			loc, err := tz.Timezone(ctx, tenantID)
			if err != nil {
				loc = time.UTC
			}
			return summarizeAvailability(busy, loc), nil
		},
	}
}

// NewBookAppointmentTool binds book_appointment to sched. Phone/email
// normalization (spec.md §4.10) runs before sched is ever called; a
// normalization failure short-circuits with the literal
// missing_or_invalid_booking_fields error string instead of reaching the
// calendar adapter.
func NewBookAppointmentTool(sched Scheduler, tz TenantTimezones) BuiltinTool {
	return BuiltinTool{
		Definition: ToolDefinition{
			Name:        toolBookAppointment,
			Description: "Book an appointment on the business calendar for a named customer.",
			Parameters:  bookAppointmentSchema.doc,
		},
		Schema: bookAppointmentSchema.schema,
		Handler: func(ctx context.Context, tenantID string, argsJSON json.RawMessage) (string, error) {
			var args struct {
				CustomerName  string `json:"customer_name"`
				CustomerPhone string `json:"customer_phone"`
				CustomerEmail string `json:"customer_email"`
				StartTime     string `json:"start_time"`
				EndTime       string `json:"end_time"`
				Description   string `json:"description"`
			}
			if err := json.Unmarshal(argsJSON, &args); err != nil {
				return "", fmt.Errorf("toolexec: %s: %w", toolBookAppointment, err)
			}

			nameOK := args.CustomerName != ""
			phone, phoneOK := NormalizePhone(args.CustomerPhone)
			email, emailOK := NormalizeEmail(args.CustomerEmail)
			if !nameOK || !phoneOK || !emailOK {
				return fmt.Sprintf("missing_or_invalid_booking_fields (name=%t, phone=%t, email=%t)", nameOK, phoneOK, emailOK), nil
			}

			loc, err := tz.Timezone(ctx, tenantID)
			if err != nil {
				loc = time.UTC
			}

			start, err := parseBookingTimestamp(args.StartTime, loc)
			if err != nil {
				return fmt.Sprintf("Error: start_time %q is not a valid timestamp: %s", args.StartTime, err), nil
			}
			end, err := parseBookingTimestamp(args.EndTime, loc)
			if err != nil {
				return fmt.Sprintf("Error: end_time %q is not a valid timestamp: %s", args.EndTime, err), nil
			}
			if !start.Before(end) {
				return "Error: start_time must be before end_time.", nil
			}

			eventID, err := sched.BookAppointment(ctx, tenantID, BookingRequest{
				CustomerName:  args.CustomerName,
				CustomerPhone: phone,
				CustomerEmail: email,
				Start:         start,
				End:           end,
				Description:   args.Description,
			})
			if err != nil {
				return fmt.Sprintf("Error: %s", err), nil
			}
			return fmt.Sprintf("Appointment booked successfully. Reference ID: %s", eventID), nil
		},
	}
}

// NewTakeVoicemailTool returns the take_voicemail builtin, which always
// succeeds and always returns [VoicemailSentinel]; reason is accepted but
// not interpreted, neither by the tool nor by the orchestrator, which only
// looks for the sentinel to end the call.
func NewTakeVoicemailTool() BuiltinTool {
	return BuiltinTool{
		Definition: ToolDefinition{
			Name:        toolTakeVoicemail,
			Description: "Hand the caller off to voicemail when they cannot be helped in-call.",
			Parameters:  takeVoicemailSchema.doc,
		},
		Schema: takeVoicemailSchema.schema,
		Handler: func(ctx context.Context, tenantID string, argsJSON json.RawMessage) (string, error) {
			return VoicemailSentinel, nil
		},
	}
}
