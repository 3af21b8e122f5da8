// Package toolexec binds the fixed set of voice-reception tool names
// (check_availability, book_appointment, take_voicemail) to Go handlers,
// validates their JSON arguments against a schema, and normalizes the
// caller-supplied phone/email fields before handing off to the scheduler.
//
// Unlike the teacher's internal/mcp/mcphost.Host, which discovers tools
// dynamically from external MCP servers and tiers them by measured latency,
// this registry only ever holds builtin, in-process tools: the set is fixed
// by spec, so there is no server discovery and no latency tiering.
package toolexec

import (
	"context"
	"time"
)

// ToolDefinition describes a single callable tool, including its
// JSON-Schema-shaped parameter contract.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolResult holds the outcome of a single tool execution. Content is always
// a string so it can be re-fed to the LLM as a tool-result message.
type ToolResult struct {
	Content    string
	IsError    bool
	DurationMs int64
}

// BusyInterval is a half-open [Start, End) span during which a calendar is
// occupied.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// BookingRequest carries the fields needed to create a calendar appointment,
// after normalization has already run.
type BookingRequest struct {
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Start         time.Time
	End           time.Time
	Description   string
}

// Scheduler is the narrow slice of the Scheduler Core that the builtin tools
// depend on. internal/scheduler's concrete type satisfies this interface
// structurally; toolexec does not import internal/scheduler so that
// internal/scheduler is free to import toolexec's normalization helpers.
type Scheduler interface {
	CheckAvailability(ctx context.Context, tenantID string, start, end time.Time) ([]BusyInterval, error)
	BookAppointment(ctx context.Context, tenantID string, req BookingRequest) (eventID string, err error)
}

// TenantTimezones resolves the IANA timezone a tenant renders times in.
type TenantTimezones interface {
	Timezone(ctx context.Context, tenantID string) (*time.Location, error)
}
