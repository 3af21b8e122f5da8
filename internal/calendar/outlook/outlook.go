// Package outlook implements a Microsoft 365 / Outlook backed
// calendar.Provider using the Microsoft Graph REST API directly over
// net/http.
package outlook

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
)

const (
	authEndpointFmt  = "https://login.microsoftonline.com/%s/oauth2/v2.0/authorize"
	tokenEndpointFmt = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphBase        = "https://graph.microsoft.com/v1.0"
	getScheduleURL   = graphBase + "/me/calendar/getSchedule"
	eventsURL        = graphBase + "/me/calendar/events"
	calendarViewURLFmt = graphBase + "/me/calendarView?startDateTime=%s&endDateTime=%s"
)

// Provider implements calendar.Provider against Microsoft Graph.
type Provider struct {
	oauthCfg *oauth2.Config
	vault    *vault.Vault
}

var _ calendar.Provider = (*Provider)(nil)

// New creates an Outlook/Graph Provider. tenant365 is the Microsoft Entra
// (Azure AD) directory tenant, or "common" for multi-tenant/personal
// accounts — distinct from this application's per-customer tenantID.
func New(clientID, clientSecret, redirectURL, tenant365 string, v *vault.Vault) *Provider {
	if tenant365 == "" {
		tenant365 = "common"
	}
	return &Provider{
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"offline_access", "Calendars.ReadWrite"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf(authEndpointFmt, tenant365),
				TokenURL: fmt.Sprintf(tokenEndpointFmt, tenant365),
			},
		},
		vault: v,
	}
}

// AuthURL returns the Microsoft identity platform consent screen URL,
// passing tenantID as the state parameter.
func (p *Provider) AuthURL(tenantID string) (string, error) {
	return p.oauthCfg.AuthCodeURL(tenantID), nil
}

// CompleteOAuth exchanges code for tokens and stores them for tenantID.
func (p *Provider) CompleteOAuth(ctx context.Context, tenantID, code string) error {
	tok, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("outlook: exchange code for tenant %q: %w", tenantID, err)
	}
	return p.vault.Upsert(ctx, tenantID, vault.Credential{
		Provider:     "outlook",
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

func (p *Provider) httpClient(ctx context.Context, tenantID string) (*http.Client, error) {
	ts, err := calendar.VaultTokenSource(ctx, p.vault, p.oauthCfg, tenantID, "outlook")
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

type scheduleRequest struct {
	Schedules []string   `json:"schedules"`
	StartTime dateTimeTZ `json:"startTime"`
	EndTime   dateTimeTZ `json:"endTime"`
}

type dateTimeTZ struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type scheduleResponse struct {
	Value []struct {
		ScheduleItems []struct {
			Start dateTimeTZ `json:"start"`
			End   dateTimeTZ `json:"end"`
		} `json:"scheduleItems"`
	} `json:"value"`
}

// BusyTimes queries Graph's getSchedule endpoint for the tenant's own
// mailbox.
func (p *Provider) BusyTimes(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Interval, error) {
	client, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(scheduleRequest{
		Schedules: []string{"me"},
		StartTime: dateTimeTZ{DateTime: from.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		EndTime:   dateTimeTZ{DateTime: to.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
	})
	if err != nil {
		return nil, fmt.Errorf("outlook: marshal getSchedule request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, getScheduleURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("outlook: create getSchedule request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("outlook: getSchedule: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, calendar.MapStatusError("outlook", resp.StatusCode, string(body))
	}

	var sr scheduleResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("outlook: decode getSchedule response: %w", err)
	}

	var intervals []calendar.Interval
	for _, v := range sr.Value {
		for _, item := range v.ScheduleItems {
			start, errS := time.Parse("2006-01-02T15:04:05.0000000", item.Start.DateTime)
			if errS != nil {
				start, errS = time.Parse(time.RFC3339, item.Start.DateTime)
			}
			end, errE := time.Parse("2006-01-02T15:04:05.0000000", item.End.DateTime)
			if errE != nil {
				end, errE = time.Parse(time.RFC3339, item.End.DateTime)
			}
			if errS != nil || errE != nil {
				continue
			}
			intervals = append(intervals, calendar.Interval{Start: start, End: end})
		}
	}
	return intervals, nil
}

type eventResource struct {
	ID        string     `json:"id,omitempty"`
	Subject   string     `json:"subject"`
	Body      *itemBody  `json:"body,omitempty"`
	Start     dateTimeTZ `json:"start"`
	End       dateTimeTZ `json:"end"`
	Attendees []attendee `json:"attendees,omitempty"`
	ShowAs    string     `json:"showAs,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type attendee struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

// CreateEvent inserts a new event on the tenant's mailbox calendar.
func (p *Provider) CreateEvent(ctx context.Context, tenantID string, req calendar.CreateEventRequest) (string, error) {
	client, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return "", err
	}

	attendees := make([]attendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, attendee{EmailAddress: emailAddress{Address: a}})
	}

	reqBody, err := json.Marshal(eventResource{
		Subject:   req.Summary,
		Body:      &itemBody{ContentType: "text", Content: req.Description},
		Start:     dateTimeTZ{DateTime: req.Start.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		End:       dateTimeTZ{DateTime: req.End.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		Attendees: attendees,
	})
	if err != nil {
		return "", fmt.Errorf("outlook: marshal create event request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, eventsURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("outlook: create event request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("outlook: create event: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", calendar.MapStatusError("outlook", resp.StatusCode, string(body))
	}

	var created eventResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("outlook: decode create event response: %w", err)
	}
	return created.ID, nil
}

type eventsListResponse struct {
	Value []eventResource `json:"value"`
}

// ListEvents lists every event on the tenant's calendar overlapping
// [from, to) via Graph's calendarView endpoint.
func (p *Provider) ListEvents(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Event, error) {
	client, err := p.httpClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(calendarViewURLFmt,
		from.UTC().Format("2006-01-02T15:04:05"), to.UTC().Format("2006-01-02T15:04:05"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("outlook: calendarView request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("outlook: calendarView: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, calendar.MapStatusError("outlook", resp.StatusCode, string(body))
	}

	var list eventsListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("outlook: decode calendarView response: %w", err)
	}

	events := make([]calendar.Event, 0, len(list.Value))
	for _, it := range list.Value {
		start, _ := time.Parse("2006-01-02T15:04:05.0000000", it.Start.DateTime)
		end, _ := time.Parse("2006-01-02T15:04:05.0000000", it.End.DateTime)
		attendees := make([]string, 0, len(it.Attendees))
		for _, a := range it.Attendees {
			attendees = append(attendees, a.EmailAddress.Address)
		}
		desc := ""
		if it.Body != nil {
			desc = it.Body.Content
		}
		events = append(events, calendar.Event{
			ID:          it.ID,
			Summary:     it.Subject,
			Description: desc,
			Start:       start,
			End:         end,
			Attendees:   attendees,
			Status:      it.ShowAs,
		})
	}
	return events, nil
}
