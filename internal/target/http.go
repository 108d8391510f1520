package target

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/types"
)

// HTTPConfig describes an HTTP endpoint that accepts a prompt and returns a
// reply somewhere in its response body.
type HTTPConfig struct {
	URL     string            `mapstructure:"url" yaml:"url" json:"url"`
	Method  string            `mapstructure:"method" yaml:"method" json:"method" validate:"omitempty,oneof=GET POST PUT"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"headers,omitempty"`

	// BodyTemplate renders the request body from {{ .prompt }}. Empty sends
	// the prompt itself. URL is rendered the same way when it contains "{{".
	BodyTemplate string `mapstructure:"body_template" yaml:"body_template" json:"body_template,omitempty"`

	// At most one extractor is used, in this order: JSONPath, CSS selector,
	// regular expression (first group, or the whole match). With none set
	// the whole body is the reply.
	ResponseJSONPath string `mapstructure:"response_jsonpath" yaml:"response_jsonpath" json:"response_jsonpath,omitempty"`
	ResponseSelector string `mapstructure:"response_selector" yaml:"response_selector" json:"response_selector,omitempty"`
	ResponseRegex    string `mapstructure:"response_regex" yaml:"response_regex" json:"response_regex,omitempty"`

	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout,omitempty"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute,omitempty"`
}

// HTTPTarget sends each prompt as a single HTTP request. It keeps no
// conversation state.
type HTTPTarget struct {
	cfg      HTTPConfig
	client   *http.Client
	renderer *prompt.Renderer
	jsonPath jp.Expr
	regex    *regexp.Regexp
	limiter  *rate.Limiter
	logger   *slog.Logger
	id       string
}

// NewHTTPTarget creates an HTTP target. A nil client uses a client with
// cfg.Timeout.
func NewHTTPTarget(cfg HTTPConfig, client *http.Client, logger *slog.Logger) (*HTTPTarget, error) {
	if cfg.URL == "" {
		return nil, types.NewError(ErrCodeInvalidConfig, "http target url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &HTTPTarget{
		cfg:      cfg,
		client:   client,
		renderer: prompt.NewRenderer(),
		limiter:  newLimiter(cfg.RequestsPerMinute),
		logger:   logger,
		id:       types.NewID().String(),
	}

	if cfg.ResponseJSONPath != "" {
		expr, err := jp.ParseString(cfg.ResponseJSONPath)
		if err != nil {
			return nil, types.WrapError(ErrCodeInvalidConfig, "invalid response_jsonpath", err)
		}
		t.jsonPath = expr
	}
	if cfg.ResponseRegex != "" {
		re, err := regexp.Compile(cfg.ResponseRegex)
		if err != nil {
			return nil, types.WrapError(ErrCodeInvalidConfig, "invalid response_regex", err)
		}
		t.regex = re
	}
	return t, nil
}

func (t *HTTPTarget) Identifier() types.Identifier {
	return types.NewIdentifier("HTTPTarget", t.id).With("url", t.cfg.URL)
}

// SetSystemPrompt is not supported; HTTP endpoints own their system prompt.
func (t *HTTPTarget) SetSystemPrompt(ctx context.Context, prompt, conversationID string, orchestrator types.Identifier, labels map[string]string) error {
	return types.NewError(ErrCodeInvalidRequest, "http target does not support system prompts")
}

func (t *HTTPTarget) Send(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	piece := req.Last()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	params := map[string]any{"prompt": piece.ConvertedValue}

	url := t.cfg.URL
	if strings.Contains(url, "{{") {
		rendered, err := t.renderer.Render("url", url, params)
		if err != nil {
			return Response{}, err
		}
		url = rendered
	}

	var body io.Reader
	if t.cfg.Method != http.MethodGet {
		payload := piece.ConvertedValue
		if t.cfg.BodyTemplate != "" {
			rendered, err := t.renderer.Render("body", t.cfg.BodyTemplate, params)
			if err != nil {
				return Response{}, err
			}
			payload = rendered
		}
		body = bytes.NewBufferString(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, t.cfg.Method, url, body)
	if err != nil {
		return Response{}, types.WrapError(ErrCodeInvalidRequest, "failed to build http request", err)
	}
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, NewUnavailableError(t.cfg.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NewUnavailableError(t.cfg.URL, fmt.Errorf("failed to read response body: %w", err))
	}

	if err := checkStatus(t.cfg.URL, resp.StatusCode, data); err != nil {
		return Response{}, err
	}

	reply, err := t.extract(data)
	if err != nil {
		return Response{}, err
	}

	t.logger.Debug("http target replied", "url", t.cfg.URL, "status", resp.StatusCode, "bytes", len(data))
	out := NewResponsePiece(piece, t.Identifier(), reply, types.DataTypeText)
	if reply == "" {
		out.ResponseError = memory.ResponseErrorEmpty
	}
	return Response{Pieces: []*memory.Piece{out}}, nil
}

func (t *HTTPTarget) extract(body []byte) (string, error) {
	switch {
	case t.jsonPath != nil:
		return extractJSONPath(t.jsonPath, body)

	case t.cfg.ResponseSelector != "":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return "", types.WrapError(ErrCodeExtractFailed, "response is not HTML", err)
		}
		sel := doc.Find(t.cfg.ResponseSelector).First()
		if sel.Length() == 0 {
			return "", types.NewError(ErrCodeExtractFailed, "selector matched nothing: "+t.cfg.ResponseSelector)
		}
		return strings.TrimSpace(sel.Text()), nil

	case t.regex != nil:
		m := t.regex.FindSubmatch(body)
		if m == nil {
			return "", types.NewError(ErrCodeExtractFailed, "regex matched nothing: "+t.cfg.ResponseRegex)
		}
		if len(m) > 1 {
			return string(m[1]), nil
		}
		return string(m[0]), nil

	default:
		return string(body), nil
	}
}

func extractJSONPath(expr jp.Expr, body []byte) (string, error) {
	doc, err := oj.Parse(body)
	if err != nil {
		return "", types.WrapError(ErrCodeExtractFailed, "response is not JSON", err)
	}
	results := expr.Get(doc)
	if len(results) == 0 {
		return "", types.NewError(ErrCodeExtractFailed, "jsonpath matched nothing: "+expr.String())
	}
	if s, ok := results[0].(string); ok {
		return s, nil
	}
	return oj.JSON(results[0]), nil
}

// checkStatus maps HTTP failures onto the error taxonomy: auth, throttling
// and server errors mean the target is unavailable.
func checkStatus(target string, code int, body []byte) error {
	if code < 400 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	cause := fmt.Errorf("http status %d: %s", code, snippet)

	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusTooManyRequests, code >= 500:
		return NewUnavailableError(target, cause)
	default:
		return types.WrapError(ErrCodeSendFailed, "target rejected the request", cause)
	}
}

func (t *HTTPTarget) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
