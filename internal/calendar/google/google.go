// Package google implements a Google Calendar backed calendar.Provider
// using the Calendar API v3 REST surface directly over net/http, the same
// one-shot-REST-client shape the teacher uses for pkg/provider/tts/elevenlabs.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/glyphoxa/internal/calendar"
	"github.com/MrWong99/glyphoxa/internal/vault"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	freeBusyEndpoint  = "https://www.googleapis.com/calendar/v3/freeBusy"
	eventsEndpointFmt = "https://www.googleapis.com/calendar/v3/calendars/%s/events"
)

// Provider implements calendar.Provider against the Google Calendar API.
type Provider struct {
	oauthCfg *oauth2.Config
	vault    *vault.Vault
}

var _ calendar.Provider = (*Provider)(nil)

// New creates a Google Calendar Provider. clientID/clientSecret/redirectURL
// configure the OAuth app registered in the Google Cloud console; v stores
// and refreshes per-tenant tokens.
func New(clientID, clientSecret, redirectURL string, v *vault.Vault) *Provider {
	return &Provider{
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
			Endpoint:     google.Endpoint,
		},
		vault: v,
	}
}

// AuthURL returns the Google OAuth consent screen URL, passing tenantID as
// the state parameter so the callback handler can resolve which tenant
// completed consent.
func (p *Provider) AuthURL(tenantID string) (string, error) {
	return p.oauthCfg.AuthCodeURL(tenantID, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteOAuth exchanges code for tokens and stores them for tenantID.
func (p *Provider) CompleteOAuth(ctx context.Context, tenantID, code string) error {
	tok, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("google: exchange code for tenant %q: %w", tenantID, err)
	}
	return p.vault.Upsert(ctx, tenantID, vault.Credential{
		Provider:     "google",
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

// httpClient returns an http.Client that authenticates as tenantID and the
// calendar_id the tenant has selected.
func (p *Provider) httpClient(ctx context.Context, tenantID string) (*http.Client, string, error) {
	cred, err := p.vault.Get(ctx, tenantID, "google")
	if err != nil {
		return nil, "", err
	}
	ts, err := calendar.VaultTokenSource(ctx, p.vault, p.oauthCfg, tenantID, "google")
	if err != nil {
		return nil, "", err
	}
	calendarID := cred.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return oauth2.NewClient(ctx, ts), calendarID, nil
}

type freeBusyRequest struct {
	TimeMin string                     `json:"timeMin"`
	TimeMax string                    `json:"timeMax"`
	Items   []freeBusyRequestCalendar `json:"items"`
}

type freeBusyRequestCalendar struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]freeBusyCalendarEntry `json:"calendars"`
}

type freeBusyCalendarEntry struct {
	Busy []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"busy"`
}

// BusyTimes queries the Calendar API's freeBusy endpoint.
func (p *Provider) BusyTimes(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Interval, error) {
	client, calendarID, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(freeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []freeBusyRequestCalendar{{ID: calendarID}},
	})
	if err != nil {
		return nil, fmt.Errorf("google: marshal freeBusy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, freeBusyEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("google: create freeBusy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: freeBusy: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, calendar.MapStatusError("google", resp.StatusCode, string(body))
	}

	var fb freeBusyResponse
	if err := json.Unmarshal(body, &fb); err != nil {
		return nil, fmt.Errorf("google: decode freeBusy response: %w", err)
	}

	entry := fb.Calendars[calendarID]
	intervals := make([]calendar.Interval, 0, len(entry.Busy))
	for _, b := range entry.Busy {
		start, errS := time.Parse(time.RFC3339, b.Start)
		end, errE := time.Parse(time.RFC3339, b.End)
		if errS != nil || errE != nil {
			continue
		}
		intervals = append(intervals, calendar.Interval{Start: start, End: end})
	}
	return intervals, nil
}

type eventResource struct {
	ID          string          `json:"id,omitempty"`
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Start       eventDateTime   `json:"start"`
	End         eventDateTime   `json:"end"`
	Attendees   []eventAttendee `json:"attendees,omitempty"`
	Status      string          `json:"status,omitempty"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
}

type eventAttendee struct {
	Email string `json:"email"`
}

// CreateEvent inserts a new event on the tenant's selected calendar.
func (p *Provider) CreateEvent(ctx context.Context, tenantID string, req calendar.CreateEventRequest) (string, error) {
	client, calendarID, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return "", err
	}

	attendees := make([]eventAttendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, eventAttendee{Email: a})
	}

	reqBody, err := json.Marshal(eventResource{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         eventDateTime{DateTime: req.End.Format(time.RFC3339)},
		Attendees:   attendees,
	})
	if err != nil {
		return "", fmt.Errorf("google: marshal create event request: %w", err)
	}

	url := fmt.Sprintf(eventsEndpointFmt, calendarID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("google: create event request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google: create event: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", calendar.MapStatusError("google", resp.StatusCode, string(body))
	}

	var created eventResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("google: decode create event response: %w", err)
	}
	return created.ID, nil
}

type eventsListResponse struct {
	Items []eventResource `json:"items"`
}

// ListEvents lists every event on the tenant's calendar overlapping
// [from, to).
func (p *Provider) ListEvents(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Event, error) {
	client, calendarID, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(eventsEndpointFmt, calendarID) +
		fmt.Sprintf("?timeMin=%s&timeMax=%s&singleEvents=true",
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("google: list events request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: list events: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, calendar.MapStatusError("google", resp.StatusCode, string(body))
	}

	var list eventsListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("google: decode list events response: %w", err)
	}

	events := make([]calendar.Event, 0, len(list.Items))
	for _, it := range list.Items {
		start, _ := time.Parse(time.RFC3339, it.Start.DateTime)
		end, _ := time.Parse(time.RFC3339, it.End.DateTime)
		attendees := make([]string, 0, len(it.Attendees))
		for _, a := range it.Attendees {
			attendees = append(attendees, a.Email)
		}
		events = append(events, calendar.Event{
			ID:          it.ID,
			Summary:     it.Summary,
			Description: it.Description,
			Start:       start,
			End:         end,
			Attendees:   attendees,
			Status:      it.Status,
		})
	}
	return events, nil
}
