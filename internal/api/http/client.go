package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/Paintersrp/procsup/internal/api"
)

// ErrServiceNotRunning is returned when no supervisor answers at the
// configured address.
var ErrServiceNotRunning = errors.New("service is not running")

// Error is a non-success reply from the control server.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("control server returned %d", e.StatusCode)
}

// Is maps not-found replies onto api.ErrNotFound.
func (e *Error) Is(target error) bool {
	switch target {
	case api.ErrNotFound:
		return e.StatusCode == http.StatusNotFound && e.Code == "not_found"
	case api.ErrShuttingDown:
		return e.StatusCode == http.StatusServiceUnavailable
	case api.ErrSpawnFailed:
		return e.Code == "spawn_failed"
	}
	return false
}

// Client talks to a Server.
type Client struct {
	base   string
	client *http.Client
}

// NewClient returns a client for the server listening on addr. An empty addr
// selects the default endpoint.
func NewClient(addr string) *Client {
	return &Client{
		base:   "http://" + normalizeAddr(addr),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches the status of every program.
func (c *Client) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	var report api.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Start starts the named program, or every program for "all".
func (c *Client) Start(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	return c.action(ctx, name, "start")
}

// Stop stops the named program, or every program for "all".
func (c *Client) Stop(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	return c.action(ctx, name, "stop")
}

// Restart restarts the named program, or every program for "all".
func (c *Client) Restart(ctx stdcontext.Context, name string) (*api.ActionResult, error) {
	return c.action(ctx, name, "restart")
}

func (c *Client) action(ctx stdcontext.Context, name, action string) (*api.ActionResult, error) {
	var result api.ActionResult
	path := "/api/v1/programs/" + url.PathEscape(name) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx stdcontext.Context, method, path string, v any) error {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		if isConnectionFailure(err) {
			return ErrServiceNotRunning
		}
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &Error{StatusCode: res.StatusCode, Code: eb.Code, Message: eb.Message}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

var _ api.Controller = (*Client)(nil)
