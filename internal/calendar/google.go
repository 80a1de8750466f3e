package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// GoogleClient implements Client against the Google Calendar API using each
// user's stored OAuth tokens.
type GoogleClient struct {
	config *oauth2.Config
	logger *logging.Logger
}

// NewGoogleClient builds the OAuth config. Returns nil when the
// credentials are absent, which callers treat as "feature off".
func NewGoogleClient(clientID, clientSecret, redirectURL string, logger *logging.Logger) *GoogleClient {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				gcal.CalendarEventsScope,
				gcal.CalendarReadonlyScope,
			},
			Endpoint: google.Endpoint,
		},
		logger: logger.Component("calendar"),
	}
}

// AuthURL returns the consent URL. The phone travels in the state
// parameter so the callback can bind the tokens to the right user.
func (c *GoogleClient) AuthURL(phone string) string {
	return c.config.AuthCodeURL(phone, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange redeems the callback code for tokens.
func (c *GoogleClient) Exchange(ctx context.Context, code string) (users.CalendarCredentials, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return users.CalendarCredentials{}, fmt.Errorf("calendar: token exchange failed: %w", err)
	}
	return users.CalendarCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		CalendarID:   "primary",
		Expiry:       token.Expiry,
	}, nil
}

func (c *GoogleClient) service(ctx context.Context, user *users.User) (*gcal.Service, error) {
	if !user.Calendar.Connected() {
		return nil, ErrNotConnected
	}
	token := &oauth2.Token{
		AccessToken:  user.Calendar.AccessToken,
		RefreshToken: user.Calendar.RefreshToken,
		Expiry:       user.Calendar.Expiry,
	}
	source := c.config.TokenSource(ctx, token)
	svc, err := gcal.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("calendar: service init failed: %w", err)
	}
	return svc, nil
}

func (c *GoogleClient) FreeBusy(ctx context.Context, user *users.User, from, to time.Time) ([]BusyInterval, error) {
	svc, err := c.service(ctx, user)
	if err != nil {
		return nil, err
	}
	calendarID := user.Calendar.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query failed: %w", err)
	}

	var out []BusyInterval
	if cal, ok := resp.Calendars[calendarID]; ok {
		for _, b := range cal.Busy {
			start, err1 := time.Parse(time.RFC3339, b.Start)
			end, err2 := time.Parse(time.RFC3339, b.End)
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, BusyInterval{Start: start, End: end})
		}
	}
	return out, nil
}

func eventDescription(minutes int, counterpartPhone string) string {
	return fmt.Sprintf("%d-minute language exchange with %s, booked by Nelo.", minutes, counterpartPhone)
}

func (c *GoogleClient) CreateEvent(ctx context.Context, user *users.User, start time.Time, minutes int, counterpartPhone string) (string, error) {
	svc, err := c.service(ctx, user)
	if err != nil {
		return "", err
	}
	calendarID := user.Calendar.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	event := &gcal.Event{
		Summary:     "Language exchange session",
		Description: eventDescription(minutes, counterpartPhone),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: start.Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339)},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}

	created, err := svc.Events.Insert(calendarID, event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("calendar: event insert failed: %w", err)
	}
	c.logger.Info("calendar event created", "phone", user.Phone, "event_id", created.Id)
	return created.HangoutLink, nil
}
