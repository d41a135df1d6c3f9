package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/proxy"
)

const (
	DefaultBaseURL   = "https://i.instagram.com"
	DefaultTimeout   = 90 * time.Second
	DefaultUserAgent = "Instagram 269.0.0.18.75 Android (26/8.0.0; 480dpi; 1080x1920; OnePlus; 6T Dev; devitron; qcom; en_US; 314665256)"

	loginPagePath = "/accounts/login/"
	loginPath     = "/api/v1/accounts/login/"
	feedPath      = "/api/v1/feed/timeline/"
)

// Config configures HTTP clients built by NewFactory.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// NewFactory returns a Factory producing HTTPClients.
func NewFactory(cfg Config) Factory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return func(proxyURL string) (Client, error) {
		return NewHTTPClient(cfg, proxyURL)
	}
}

// settings is the persisted form of an HTTPClient session.
type settings struct {
	DeviceID  string         `json:"device_id"`
	UUID      string         `json:"uuid"`
	UserAgent string         `json:"user_agent"`
	UserID    string         `json:"user_id,omitempty"`
	Cookies   []cookieRecord `json:"cookies"`
	LastLogin *time.Time     `json:"last_login,omitempty"`
}

type cookieRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// apiResponse covers the fields shared by login and feed replies.
type apiResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	LoggedInUser *struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"logged_in_user"`
}

// HTTPClient is the Client implementation over the service's private HTTP API.
type HTTPClient struct {
	base      *url.URL
	http      *http.Client
	jar       http.CookieJar
	userAgent string
	deviceID  string
	uuid      string
	userID    string
	lastLogin *time.Time
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client with a fresh device identity routed through proxyURL.
func NewHTTPClient(cfg Config, proxyURL string) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if err := routeThrough(transport, proxyURL); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	device := uuid.New()
	return &HTTPClient{
		base: base,
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
		jar:       jar,
		userAgent: cfg.UserAgent,
		deviceID:  "android-" + strings.ReplaceAll(device.String(), "-", "")[:16],
		uuid:      uuid.New().String(),
	}, nil
}

// routeThrough configures transport for the given proxy URL.
func routeThrough(transport *http.Transport, proxyURL string) error {
	if proxyURL == "" {
		return nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy %q: %w", proxyURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return errors.New("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return nil
}

// Login performs a fresh password login.
func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	csrf, err := c.fetchCSRF(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"username":            {username},
		"password":            {password},
		"device_id":           {c.deviceID},
		"guid":                {c.uuid},
		"login_attempt_count": {"0"},
	}
	req, err := c.newRequest(ctx, http.MethodPost, loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-CSRFToken", csrf)

	status, body, err := c.do(req, "login")
	if err != nil {
		return err
	}
	if status == http.StatusOK && body.Status == "ok" && body.LoggedInUser != nil {
		c.userID = body.LoggedInUser.PK.String()
		now := time.Now().UTC()
		c.lastLogin = &now
		return nil
	}
	return classify(status, body)
}

// FetchFeed requests the timeline; it fails with ErrLoginRequired when the
// session is no longer accepted.
func (c *HTTPClient) FetchFeed(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, feedPath, nil)
	if err != nil {
		return err
	}
	status, body, err := c.do(req, "feed")
	if err != nil {
		return err
	}
	if status == http.StatusOK && body.Status == "ok" {
		return nil
	}
	return classify(status, body)
}

// DumpSettings serializes the device identity and cookies.
func (c *HTTPClient) DumpSettings() ([]byte, error) {
	s := settings{
		DeviceID:  c.deviceID,
		UUID:      c.uuid,
		UserAgent: c.userAgent,
		UserID:    c.userID,
		LastLogin: c.lastLogin,
	}
	for _, ck := range c.jar.Cookies(c.base) {
		s.Cookies = append(s.Cookies, cookieRecord{Name: ck.Name, Value: ck.Value})
	}
	return json.MarshalIndent(s, "", "  ")
}

// LoadSettings restores a session produced by DumpSettings.
func (c *HTTPClient) LoadSettings(blob []byte) error {
	var s settings
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("failed to decode session settings: %w", err)
	}
	if s.DeviceID == "" {
		return errors.New("session settings carry no device id")
	}

	c.deviceID = s.DeviceID
	if s.UUID != "" {
		c.uuid = s.UUID
	}
	if s.UserAgent != "" {
		c.userAgent = s.UserAgent
	}
	c.userID = s.UserID
	c.lastLogin = s.LastLogin

	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, ck := range s.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.jar.SetCookies(c.base, cookies)
	return nil
}

// fetchCSRF loads the login page and extracts the CSRF token from the markup,
// falling back to the csrftoken cookie.
func (c *HTTPClient) fetchCSRF(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, loginPagePath, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "login page", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &UnknownError{StatusCode: resp.StatusCode, Message: "login page unavailable"}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", &NetworkError{Op: "login page", Err: err}
	}
	if token, ok := doc.Find(`input[name="csrfmiddlewaretoken"]`).Attr("value"); ok && token != "" {
		return token, nil
	}
	if token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok && token != "" {
		return token, nil
	}
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == "csrftoken" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", &UnknownError{StatusCode: resp.StatusCode, Type: "csrf_missing", Message: "login page carried no csrf token"}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-IG-Device-ID", c.uuid)
	req.Header.Set("X-IG-Android-ID", c.deviceID)
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set("IG-U-DS-USER-ID", c.userID)
	}
	return req, nil
}

// do executes req and decodes the JSON envelope. Transport failures become
// NetworkError; undecodable bodies are reported as UnknownError.
func (c *HTTPClient) do(req *http.Request, op string) (int, apiResponse, error) {
	var body apiResponse

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, body, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, body, &NetworkError{Op: op, Err: err}
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return resp.StatusCode, body, &UnknownError{
			StatusCode: resp.StatusCode,
			Message:    "unexpected response (HTTP " + strconv.Itoa(resp.StatusCode) + ")",
		}
	}
	return resp.StatusCode, body, nil
}

// classify maps a failed API reply onto the package's error values.
func classify(status int, body apiResponse) error {
	kind := strings.ToLower(body.ErrorType)
	msg := strings.ToLower(body.Message)

	switch {
	case kind == "bad_password":
		return ErrBadPassword
	case kind == "challenge_required" || kind == "checkpoint_required" ||
		msg == "challenge_required" || msg == "checkpoint_required":
		return ErrChallengeRequired
	case kind == "login_required" || msg == "login_required" ||
		status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrLoginRequired
	default:
		return &UnknownError{StatusCode: status, Type: body.ErrorType, Message: body.Message}
	}
}
