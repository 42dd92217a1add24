package adamas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"auattend-backend/lib/restyutil"
	"auattend-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Client holds one portal session: a resty client whose cookie jar is
// the authenticated state. A Client must never be shared between users,
// create one per login attempt and discard it after the scrape.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	// bounds every portal round trip, defaults to 20s
	Timeout time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 20
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	// login success is signaled by a 302 which must reach us unconsumed,
	// and an expired session surfacing as a redirect to the login page
	// is easier to diagnose than a silently followed one
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "scrapers/adamas/http")
	restyutil.InstrumentClient(client, restyInstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// Login runs the portal's csrf handshake: fetch the login form, pull
// the _token field, re-submit it with the credentials. The portal
// answers a successful login with a 302 to the dashboard; a 200 means
// the form was re-rendered with an error.
func (c *Client) Login(ctx context.Context, registrationNo, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get("/student/login")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	csrfToken := doc.Find("input[name=_token]").AttrOr("value", "")
	if csrfToken == "" {
		span.SetStatus(codes.Error, ErrCsrfMissing.Error())
		return ErrCsrfMissing
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"_token":          csrfToken,
			"registration_no": registrationNo,
			"password":        password,
			// the portal's login form submit button carries a value
			// the backend checks for
			"login": "login",
		}).
		SetHeader("referer", c.BaseUrl.JoinPath("/student/login").String()).
		SetHeader("origin", c.BaseUrl.String()).
		Post("/student/login")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if res.StatusCode() != http.StatusFound {
		span.SetStatus(codes.Error, ErrInvalidCredentials.Error())
		return ErrInvalidCredentials
	}

	// the cookie jar now carries the authenticated session
	return nil
}

// FetchAttendancePage returns the raw html of the attendance summary
// page. Requires a prior successful Login on the same Client.
func (c *Client) FetchAttendancePage(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchAttendancePage")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("referer", c.BaseUrl.JoinPath("/student/dashboard").String()).
		Get("/student/attendance")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch attendance page")
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return res.String(), nil
}

// FetchRoutinePage returns the raw html of the weekly routine page
// around the given DD-MM-YYYY date.
func (c *Client) FetchRoutinePage(ctx context.Context, date string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchRoutinePage")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("pre", date).
		Get("/student/routine")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch routine page")
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return res.String(), nil
}

// IsAuthError reports whether err is a login rejection rather than an
// infrastructure failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}
