package command

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/castlink/castlink/pkg/core"
	"github.com/castlink/castlink/pkg/logger"
)

// DefaultTimeout bounds one command round-trip. A timeout resolves the
// command through its error continuation.
const DefaultTimeout = 10 * time.Second

// HTTPExecutor performs the HTTP round-trip for a command and resolves it.
// One executor is shared per device service; the underlying client pools
// connections.
type HTTPExecutor struct {
	client    *http.Client
	userAgent string
	log       logger.Logger
}

// NewHTTPExecutor builds an executor with the given request timeout.
// A zero timeout falls back to DefaultTimeout.
func NewHTTPExecutor(timeout time.Duration, userAgent string, log logger.Logger) *HTTPExecutor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPExecutor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
	}
}

// Execute runs the command synchronously and resolves it: 2xx hands the raw
// body to the success continuation, other statuses map to a CommandError,
// network failures map to a TransportError.
func (e *HTTPExecutor) Execute(cmd *Command) {
	var body io.Reader
	if cmd.Payload != "" {
		body = strings.NewReader(cmd.Payload)
	}

	req, err := http.NewRequest(cmd.Method, cmd.Target, body)
	if err != nil {
		cmd.Fail(&core.TransportError{Err: err})
		return
	}

	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	if cmd.Payload != "" {
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	}
	for k, v := range cmd.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Debug("command transport failure",
			logger.String("target", cmd.Target),
			logger.Error(err))
		cmd.Fail(&core.TransportError{Err: err})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		cmd.Fail(&core.TransportError{Err: err})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.Debug("command rejected",
			logger.String("target", cmd.Target),
			logger.Int("status", resp.StatusCode))
		cmd.Fail(core.ErrorForStatus(resp.StatusCode))
		return
	}

	cmd.Complete(raw)
}

// Do is a convenience for services whose SendCommand is just an HTTP
// round-trip with extra headers.
func (e *HTTPExecutor) Do(cmd *Command, headers map[string]string) {
	if len(headers) > 0 {
		if cmd.Headers == nil {
			cmd.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			if _, ok := cmd.Headers[k]; !ok {
				cmd.Headers[k] = v
			}
		}
	}
	e.Execute(cmd)
}
