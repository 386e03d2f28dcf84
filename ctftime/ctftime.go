// Package ctftime is a client of the ctftime.org events API
package ctftime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/weixuan0110/ctfbot/retry"
)

const (
	// DefaultBaseURL is the base url of the public API
	DefaultBaseURL = "https://ctftime.org/api/v1"

	defaultUserAgent = "ctfbot (+https://github.com/weixuan0110/ctfbot)"
	maxBodyBytes     = 8 << 20
)

var (
	// ErrEventNotFound is returned when the event doesn't exist or its data can't be read
	ErrEventNotFound = errors.New("event not found")

	// ErrImageNotFound is returned when there's no image at the requested url
	ErrImageNotFound = errors.New("image not found")

	// ErrTooLarge is returned for responses bigger than 8 MiB
	ErrTooLarge = errors.New("response too large")
)

// Event holds the details of a ctftime event
type Event struct {
	ID            int       `json:"id"`
	CTFID         int       `json:"ctf_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	CTFTimeURL    string    `json:"ctftime_url"`
	Logo          string    `json:"logo"`
	Weight        float64   `json:"weight"`
	Format        string    `json:"format"`
	Start         time.Time `json:"start"`
	Finish        time.Time `json:"finish"`
	OnSite        bool      `json:"onsite"`
	Location      string    `json:"location"`
	Restrictions  string    `json:"restrictions"`
	Participants  int       `json:"participants"`
	Duration      Duration  `json:"duration"`
	Organizers    []Team    `json:"organizers"`
	IsVotableNow  bool      `json:"is_votable_now"`
	PublicVotable bool      `json:"public_votable"`
}

// Duration is the announced length of an event
type Duration struct {
	Hours int `json:"hours"`
	Days  int `json:"days"`
}

// String returns the duration as "<days>d <hours>h"
func (d Duration) String() string {
	return fmt.Sprintf("%dd %dh", d.Days, d.Hours)
}

// Team is an organizer of an event
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Feed is implemented by any value that can fetch events
type Feed interface {
	// Event returns the event with the given id or ErrEventNotFound
	Event(ctx context.Context, id string) (e Event, err error)

	// Upcoming returns at most limit events starting between from and from+window
	Upcoming(ctx context.Context, from time.Time, window time.Duration, limit int) (events []Event, err error)

	// Image returns the image at url as a data uri
	Image(ctx context.Context, url string) (dataURI string, err error)
}

// Client implements Feed with the ctftime.org http API
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	policy    retry.Policy
}

// ClientOption defines an option for a Client
type ClientOption func(c *Client)

// OptionUserAgent sets the user agent sent with requests. ctftime rejects requests without one
func OptionUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// OptionRetryPolicy sets the retry policy of requests. Defaults to a single attempt
func OptionRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// OptionHTTPClient sets the http client used for requests
func OptionHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient returns a new Client for the API at baseURL (DefaultBaseURL when empty) with requests
// bounded by timeout
func NewClient(baseURL string, timeout time.Duration, options ...ClientOption) (c *Client) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c = new(Client)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.userAgent = defaultUserAgent
	c.policy = retry.None
	c.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Event returns the event with the given id. A missing event or one whose data can't be decoded
// results in ErrEventNotFound
func (c *Client) Event(ctx context.Context, id string) (e Event, err error) {
	if _, err = strconv.Atoi(id); err != nil {
		return e, pkgerrors.Wrapf(ErrEventNotFound, "invalid event id [%s]", id)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/events/%s/", c.baseURL, url.PathEscape(id)), ErrEventNotFound)
	if err != nil {
		return e, pkgerrors.Wrapf(err, "failed to fetch event [%s]", id)
	}

	if err = json.Unmarshal(body, &e); err != nil || e.ID == 0 || e.Title == "" {
		return Event{}, pkgerrors.Wrapf(ErrEventNotFound, "unreadable data for event [%s]", id)
	}

	return e, nil
}

// Upcoming returns at most limit events starting between from and from+window
func (c *Client) Upcoming(ctx context.Context, from time.Time, window time.Duration, limit int) (events []Event, err error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("start", strconv.FormatInt(from.Unix(), 10))
	q.Set("finish", strconv.FormatInt(from.Add(window).Unix(), 10))

	body, err := c.get(ctx, fmt.Sprintf("%s/events/?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch upcoming events")
	}

	events = make([]Event, 0)
	if err = json.Unmarshal(body, &events); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode upcoming events")
	}

	return events, nil
}

// Image downloads the image at imageURL and returns it as a data uri
func (c *Client) Image(ctx context.Context, imageURL string) (dataURI string, err error) {
	body, err := c.get(ctx, imageURL, ErrImageNotFound)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to fetch image [%s]", imageURL)
	}

	contentType := http.DetectContentType(body)
	if !strings.HasPrefix(contentType, "image/") {
		return "", pkgerrors.Errorf("content at [%s] is not an image but [%s]", imageURL, contentType)
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body)), nil
}

// get returns the body of a successful GET. A 404 is notFound when set, server errors and network
// failures are retried according to the client's policy. Bodies over maxBodyBytes fail with ErrTooLarge
func (c *Client) get(ctx context.Context, u string, notFound error) (body []byte, err error) {
	err = retry.Do(ctx, c.policy, func(ctx context.Context) (err error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && notFound != nil:
			return retry.Permanent(notFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("ctftime: http %d", resp.StatusCode)
		case resp.StatusCode/100 != 2:
			return retry.Permanent(fmt.Errorf("ctftime: http %d", resp.StatusCode))
		}

		if body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1)); err != nil {
			return err
		}

		if len(body) > maxBodyBytes {
			body = nil
			return retry.Permanent(ErrTooLarge)
		}

		return nil
	})

	return body, err
}
