package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"feedsync/app/database"
	"feedsync/app/model"
)

// Transport executes one account's provider requests: bounded timeout,
// conditional fetch against the stored validators, suspension, and error
// classification. Every call is a potential suspension point; Suspend
// cancels whatever is in flight.
type Transport struct {
	client      *http.Client
	conditional database.ConditionalGetRepository
	provider    string
	accountID   string
	userAgent   string
	timeout     time.Duration

	mu        sync.Mutex
	suspended bool
	inflight  map[int]context.CancelFunc
	nextID    int
}

// NewHTTPClient builds the http.Client provider transports share. Redirects
// are not followed: some providers answer API calls with a redirect status
// that carries meaning (Feedbin reports an existing subscription with 302),
// so clients must see the status code as-is.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func NewTransport(client *http.Client, conditional database.ConditionalGetRepository, providerName, accountID, userAgent string, timeout time.Duration) *Transport {
	return &Transport{
		client:      client,
		conditional: conditional,
		provider:    providerName,
		accountID:   accountID,
		userAgent:   userAgent,
		timeout:     timeout,
		inflight:    make(map[int]context.CancelFunc),
	}
}

// Suspend cancels all in-flight requests and rejects any that come in later.
func (t *Transport) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspended = true
	for _, cancel := range t.inflight {
		cancel()
	}
}

func (t *Transport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspended = false
}

func (t *Transport) track(cancel context.CancelFunc) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.suspended {
		return 0, ErrClientSuspended
	}
	id := t.nextID
	t.nextID++
	t.inflight[id] = cancel
	return id, nil
}

func (t *Transport) untrack(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
}

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// ResourceKey, when set, enables conditional fetch for this logical
	// resource: the stored validator rides out as If-None-Match /
	// If-Modified-Since, and a fresh validator is stored on success.
	ResourceKey string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// NotModified reports the provider confirmed the resource is unchanged.
	// Distinct from an empty body: unchanged must not trigger removal
	// reconciliation.
	NotModified bool

	// Date is the server clock from the response, when present.
	Date *time.Time
}

// DecodeJSON unmarshals the response body into out.
func (r *Response) DecodeJSON(out any) error {
	return json.Unmarshal(r.Body, out)
}

// Do executes one provider request. The returned error is always classified
// into the package taxonomy.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Method + " " + req.URL

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	id, err := t.track(cancel)
	if err != nil {
		return nil, NewError(KindSuspended, t.provider, op, err)
	}
	defer t.untrack(id)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, NewError(KindMalformedResponse, t.provider, op, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("User-Agent", t.userAgent)

	if req.ResourceKey != "" && req.Method == http.MethodGet {
		validator, err := t.conditional.Validator(ctx, t.accountID, req.ResourceKey)
		if err != nil {
			return nil, NewError(KindTransientNetwork, t.provider, op, err)
		}
		if validator != nil {
			if validator.ETag != "" {
				httpReq.Header.Set("If-None-Match", validator.ETag)
			}
			if validator.LastModified != "" {
				httpReq.Header.Set("If-Modified-Since", validator.LastModified)
			}
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.mu.Lock()
		suspended := t.suspended
		t.mu.Unlock()
		if suspended {
			return nil, NewError(KindSuspended, t.provider, op, ErrClientSuspended)
		}
		return nil, ClassifyTransport(t.provider, op, err)
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if d, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
		out.Date = &d
	}

	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		return out, nil
	}

	if resp.StatusCode >= 400 {
		return out, ClassifyHTTP(t.provider, op, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(t.provider, op, err)
	}
	out.Body = data

	if req.ResourceKey != "" && req.Method == http.MethodGet {
		v := model.Validator{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := t.conditional.Store(ctx, t.accountID, req.ResourceKey, v); err != nil {
			return nil, NewError(KindTransientNetwork, t.provider, op, err)
		}
	}

	return out, nil
}

// GetJSON performs a GET and decodes the body into out unless the resource
// was not modified.
func (t *Transport) GetJSON(ctx context.Context, req Request, out any) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	resp, err := t.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.NotModified || out == nil {
		return resp, nil
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, NewError(KindMalformedResponse, t.provider, req.Method+" "+req.URL, err)
	}
	return resp, nil
}

// PostJSON sends a JSON payload and decodes the response into out when out
// is non-nil.
func (t *Transport) PostJSON(ctx context.Context, method, url string, payload, out any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(KindMalformedResponse, t.provider, method+" "+url, err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := t.Do(ctx, Request{Method: method, URL: url, Header: header, Body: body})
	if err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, NewError(KindMalformedResponse, t.provider, method+" "+url, err)
		}
	}
	return resp, nil
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// NextLink extracts the rel="next" target from an RFC 5988 Link header.
// Empty when the listing has no further page.
func NextLink(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}
	m := nextLinkRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// Expire drops the stored validator for a resource so the next fetch is
// unconditional.
func (t *Transport) Expire(ctx context.Context, resourceKey string) error {
	return t.conditional.Expire(ctx, t.accountID, resourceKey)
}

// BasicAuth builds an Authorization header for username/password providers.
func BasicAuth(creds Credentials) http.Header {
	h := make(http.Header)
	req := http.Request{Header: h}
	req.SetBasicAuth(creds.Username, creds.Password)
	return h
}

// BearerAuth builds an Authorization header for token providers.
func BearerAuth(creds Credentials) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+creds.Token)
	return h
}
