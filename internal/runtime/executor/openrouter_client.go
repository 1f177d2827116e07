package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/signifo/designgen/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	chatCompletionsPath = "/chat/completions"
	userModelsPath      = "/models/user"
	allModelsPath       = "/models"

	acceptEncoding = "gzip, deflate, br, zstd"
	maxErrorBody   = 512
)

type openRouterClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func newOpenRouterClient(cfg *config.Config, httpClient *http.Client) *openRouterClient {
	return &openRouterClient{cfg: cfg, httpClient: httpClient}
}

// doRequest performs one HTTP exchange. Non-2xx responses are returned as a
// statusError together with the status code.
func (c *openRouterClient) doRequest(ctx context.Context, method, path, credential string, body []byte) ([]byte, int, http.Header, error) {
	endpoint := c.baseURL() + path

	var reader io.Reader
	if body != nil {
		c.debugDumpPayload("openrouter request", body)
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, nil, err
	}
	c.applyHeaders(req, credential, body != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("openrouter client: close body error: %v", errClose)
		}
	}()

	decoded, err := decodeResponseBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, resp.StatusCode, resp.Header.Clone(), fmt.Errorf("openrouter client: decode body: %w", err)
	}
	defer func() { _ = decoded.Close() }()

	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, resp.StatusCode, resp.Header.Clone(), err
	}
	c.debugDumpPayload("openrouter response", data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, resp.Header.Clone(), statusError{code: resp.StatusCode, msg: summarizeErrorBody(data)}
	}
	return data, resp.StatusCode, resp.Header.Clone(), nil
}

func (c *openRouterClient) baseURL() string {
	if c.cfg == nil || c.cfg.BaseURL == "" {
		return config.DefaultBaseURL
	}
	return c.cfg.BaseURL
}

func (c *openRouterClient) applyHeaders(req *http.Request, credential string, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if credential != "" {
		token := &oauth2.Token{AccessToken: credential, TokenType: "Bearer"}
		token.SetAuthHeader(req)
	}
	if c.cfg == nil {
		return
	}
	if c.cfg.AppReferer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.AppReferer)
	}
	if c.cfg.AppTitle != "" {
		req.Header.Set("X-Title", c.cfg.AppTitle)
	}
}

func (c *openRouterClient) debugDumpPayload(label string, payload []byte) {
	if c.cfg == nil || !c.cfg.Debug || len(payload) == 0 {
		return
	}
	const limit = 4096
	dump := bytes.TrimSpace(payload)
	truncated := false
	if len(dump) > limit {
		dump = append([]byte{}, dump[:limit]...)
		truncated = true
	} else {
		dump = append([]byte{}, dump...)
	}
	render := sanitizePayloadForLog(dump)
	if render == "" {
		render = "[binary payload omitted]"
	}
	log.WithFields(log.Fields{
		"provider":  "openrouter",
		"bytes":     len(payload),
		"truncated": truncated,
	}).Debugf("%s payload: %s", label, render)
}

// sanitizePayloadForLog folds CRLF into LF and drops control bytes so a dump
// cannot corrupt the terminal or the log file.
func sanitizePayloadForLog(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}

	out := make([]byte, 0, len(payload))
	lastWasCR := false

	for _, b := range payload {
		switch {
		case b == '\r':
			if !lastWasCR {
				out = append(out, '\n')
			}
			lastWasCR = true
			continue
		case b == '\n':
			if lastWasCR {
				lastWasCR = false
				continue
			}
			out = append(out, '\n')
			continue
		}

		lastWasCR = false
		switch {
		case b == '\t':
			out = append(out, b)
		case b < 0x20, b == 0x7f:
			continue
		case b >= 0x80 && b < 0xa0:
			continue
		default:
			out = append(out, b)
		}
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return ""
	}
	return string(out)
}

func summarizeErrorBody(data []byte) string {
	msg := strings.TrimSpace(sanitizePayloadForLog(data))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
