// Package transport performs the HTTP requests of a gradebook session and
// hands back parsed documents.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"gradespeed-backend/internal/components/assert"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/dom"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_transport_do = "transport.do"
)

type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
}

type Response struct {
	Status   int
	Body     string
	Document dom.Node
}

// Transport sends requests, GET requests carry their query in the url and
// POST requests carry it as a form body.
//
// note: fault injection point
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// TransportError is returned for network failures, cancelled requests and
// non-2xx responses. Status is 0 when no response was received.
type TransportError struct {
	Method string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second, defaults to 2.
	RateLimit        float64
	CloudflareBypass bool
	UserAgent        string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// RestyTransport is a Transport with its own cookie jar, so each instance
// is one browser session.
type RestyTransport struct {
	http *resty.Client
	tel  telemetry.API
}

func NewRestyTransport(opts Options, tel telemetry.API) (*RestyTransport, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("transport", tel)

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", opts.UserAgent)
	// round rock hops between the access center and gradebook domains
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(opts.Timeout)

	// max burst >= limit just means that no requests will be dropped
	burst := int(opts.RateLimit)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel, "gradespeed-backend/internal/transport")

	return &RestyTransport{http: client, tel: tel}, nil
}

func (t *RestyTransport) Do(ctx context.Context, req Request) (Response, error) {
	r := t.http.R().SetContext(ctx).SetHeaders(req.Headers)

	var res *resty.Response
	var err error
	switch req.Method {
	case "", "GET":
		res, err = r.SetQueryParamsFromValues(req.Query).Get(req.URL)
	case "POST":
		res, err = r.SetFormDataFromValues(req.Query).Post(req.URL)
	default:
		res, err = r.SetQueryParamsFromValues(req.Query).Execute(req.Method, req.URL)
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	if res.IsError() || res.StatusCode() >= 300 {
		return Response{}, &TransportError{
			Method: req.Method,
			URL:    req.URL,
			Status: res.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", res.Status()),
		}
	}

	doc, err := dom.Parse(bytes.NewReader(res.Body()))
	if err != nil {
		t.tel.ReportBroken(report_transport_do, fmt.Errorf("parse document: %w", err), req.URL)
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Status: res.StatusCode(), Err: err}
	}

	return Response{
		Status:   res.StatusCode(),
		Body:     string(res.Body()),
		Document: doc,
	}, nil
}
