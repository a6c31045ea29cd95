package uidriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

const (
	defaultDebugPort     = 9222
	defaultStartTimeout  = 30 * time.Second
	defaultActionTimeout = 10 * time.Second
	defaultPollInterval  = 250 * time.Millisecond
	callTimeout          = 60 * time.Second
)

type Options struct {
	// BrowserPath is the Chrome or Chromium executable to launch. Ignored
	// when ConnectURL is set.
	BrowserPath string
	// ConnectURL attaches to an already running browser, e.g.
	// http://127.0.0.1:9222.
	ConnectURL    string
	DebugPort     int
	ProfileDir    string
	Headless      bool
	Proxy         string
	StartTimeout  time.Duration
	ActionTimeout time.Duration
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.DebugPort <= 0 {
		o.DebugPort = defaultDebugPort
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = defaultStartTimeout
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = defaultActionTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	return o
}

// Session is a Driver speaking the Chrome DevTools Protocol to one page
// target.
type Session struct {
	conn    *websocket.Conn
	opts    Options
	browser *exec.Cmd

	mu     sync.Mutex
	nextID int64
	closed bool
	// broken is set once a read was cut short; the connection cannot be
	// read from again.
	broken error
}

var _ Driver = (*Session)(nil)

type cdpRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type debugTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Launch starts a browser with remote debugging enabled and attaches to its
// first page. With opts.ConnectURL set it attaches to that browser instead.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if opts.ConnectURL != "" {
		return Connect(ctx, opts.ConnectURL, opts)
	}
	if strings.TrimSpace(opts.BrowserPath) == "" {
		return nil, apperrors.New(apperrors.CodeSessionStart, "no browser executable configured")
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.DebugPort),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-popup-blocking",
	}
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSessionStart, "create browser profile dir", err)
		}
		args = append(args, "--user-data-dir="+opts.ProfileDir)
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy-server="+opts.Proxy)
	}
	args = append(args, "about:blank")

	cmd := exec.Command(opts.BrowserPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSessionStart, "start browser", err)
	}
	log.GetLogger().Info("[UIDriver] browser started",
		zap.String("path", opts.BrowserPath),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("profile", opts.ProfileDir))

	s, err := Connect(ctx, fmt.Sprintf("http://127.0.0.1:%d", opts.DebugPort), opts)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	s.browser = cmd
	return s, nil
}

// Connect attaches to the first page target exposed at endpoint, retrying
// until the debugging endpoint answers or StartTimeout elapses.
func Connect(ctx context.Context, endpoint string, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()

	client := resty.New().SetBaseURL(strings.TrimRight(endpoint, "/"))
	var lastErr error
	for {
		target, err := firstPageTarget(ctx, client)
		if err == nil {
			conn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, target.WebSocketDebuggerURL, nil)
			if dialErr == nil {
				log.GetLogger().Info("[UIDriver] attached to page",
					zap.String("target", target.ID), zap.String("url", target.URL))
				return &Session{conn: conn, opts: opts}, nil
			}
			err = dialErr
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, apperrors.WrapWithDetail(apperrors.CodeSessionStart,
				"browser debugging endpoint not reachable", endpoint, lastErr)
		case <-time.After(opts.PollInterval):
		}
	}
}

func firstPageTarget(ctx context.Context, client *resty.Client) (debugTarget, error) {
	resp, err := client.R().SetContext(ctx).Get("/json/list")
	if err != nil {
		return debugTarget{}, err
	}
	if resp.IsError() {
		return debugTarget{}, fmt.Errorf("debug endpoint returned %s", resp.Status())
	}
	var targets []debugTarget
	if err := json.Unmarshal(resp.Body(), &targets); err != nil {
		return debugTarget{}, fmt.Errorf("decode target list: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t, nil
		}
	}
	return debugTarget{}, errors.New("no page target yet")
}

// call sends one command and waits for its response, skipping events.
func (s *Session) call(ctx context.Context, method string, params any, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.broken != nil {
		return s.broken
	}

	s.nextID++
	id := s.nextID
	deadline := time.Now().Add(callTimeout)
	ctxDeadline, hasDeadline := ctx.Deadline()
	if hasDeadline && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := s.conn.WriteJSON(cdpRequest{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("cdp %s: %w", method, err)
	}
	for {
		var resp cdpResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil || (hasDeadline && !time.Now().Before(ctxDeadline)) {
				if ctxErr == nil {
					ctxErr = context.DeadlineExceeded
				}
				s.broken = fmt.Errorf("cdp session unusable after interrupted %s: %w", method, ErrSessionClosed)
				return fmt.Errorf("cdp %s: %w", method, ctxErr)
			}
			return fmt.Errorf("cdp %s: %w", method, err)
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("cdp %s: %s (%d)", method, resp.Error.Message, resp.Error.Code)
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

type remoteObject struct {
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
	Description string          `json:"description,omitempty"`
}

type evaluateResult struct {
	Result           remoteObject `json:"result"`
	ExceptionDetails *struct {
		Text      string        `json:"text"`
		Exception *remoteObject `json:"exception,omitempty"`
	} `json:"exceptionDetails,omitempty"`
}

func (r evaluateResult) err() error {
	if r.ExceptionDetails == nil {
		return nil
	}
	msg := r.ExceptionDetails.Text
	if r.ExceptionDetails.Exception != nil && r.ExceptionDetails.Exception.Description != "" {
		msg = r.ExceptionDetails.Exception.Description
	}
	return fmt.Errorf("script error: %s", msg)
}

// evaluate runs expr in the page and decodes its JSON value into out.
func (s *Session) evaluate(ctx context.Context, expr string, out any) error {
	var res evaluateResult
	params := map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	}
	if err := s.call(ctx, "Runtime.evaluate", params, &res); err != nil {
		return err
	}
	if err := res.err(); err != nil {
		return err
	}
	if out != nil && len(res.Result.Value) > 0 {
		return json.Unmarshal(res.Result.Value, out)
	}
	return nil
}

// objectID resolves loc to a remote object handle for commands that take
// one, such as DOM.setFileInputFiles.
func (s *Session) objectID(ctx context.Context, loc Locator) (string, error) {
	var res evaluateResult
	params := map[string]any{"expression": findExpr(loc)}
	if err := s.call(ctx, "Runtime.evaluate", params, &res); err != nil {
		return "", err
	}
	if err := res.err(); err != nil {
		return "", err
	}
	if res.Result.ObjectID == "" {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return res.Result.ObjectID, nil
}

func (s *Session) Quit() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.browser != nil {
		// Best effort; the process is killed below if it lingers.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.call(ctx, "Browser.close", nil, nil)
		cancel()
	}

	s.mu.Lock()
	s.closed = true
	err := s.conn.Close()
	s.mu.Unlock()

	if s.browser != nil {
		done := make(chan struct{})
		go func() {
			_ = s.browser.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = s.browser.Process.Kill()
			<-done
		}
	}
	log.GetLogger().Info("[UIDriver] session closed")
	return err
}
