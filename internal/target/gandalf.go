package target

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/types"
)

// GandalfLevel names a Lakera Gandalf defender.
type GandalfLevel string

const (
	GandalfLevel1  GandalfLevel = "baseline"
	GandalfLevel2  GandalfLevel = "do-not-tell"
	GandalfLevel3  GandalfLevel = "do-not-tell-and-block"
	GandalfLevel4  GandalfLevel = "gpt-is-password-encoded"
	GandalfLevel5  GandalfLevel = "word-blacklist"
	GandalfLevel6  GandalfLevel = "gpt-blacklist"
	GandalfLevel7  GandalfLevel = "gandalf"
	GandalfLevel8  GandalfLevel = "gandalf-the-white"
	GandalfLevel9  GandalfLevel = "adventure-1"
	GandalfLevel10 GandalfLevel = "adventure-2"
)

// DefaultGandalfURL is the public Gandalf API.
const DefaultGandalfURL = "https://gandalf.lakera.ai/api"

var answerPath = jp.MustParseString("$.answer")

// GandalfTarget plays the Lakera Gandalf password game.
type GandalfTarget struct {
	level   GandalfLevel
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGandalfTarget creates a Gandalf target. An empty baseURL uses
// DefaultGandalfURL; a nil client uses a client with a 60s timeout.
func NewGandalfTarget(level GandalfLevel, baseURL string, client *http.Client, logger *slog.Logger) *GandalfTarget {
	if baseURL == "" {
		baseURL = DefaultGandalfURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GandalfTarget{
		level:   level,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

func (t *GandalfTarget) Identifier() types.Identifier {
	return types.NewIdentifier("GandalfTarget", string(t.level)).With("level", string(t.level))
}

// SetSystemPrompt is not supported; every level has a fixed defender.
func (t *GandalfTarget) SetSystemPrompt(ctx context.Context, prompt, conversationID string, orchestrator types.Identifier, labels map[string]string) error {
	return types.NewError(ErrCodeInvalidRequest, "gandalf target does not support system prompts")
}

func (t *GandalfTarget) Send(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	piece := req.Last()

	body, err := t.post(ctx, "/send-message", url.Values{
		"defender": {string(t.level)},
		"prompt":   {piece.ConvertedValue},
	})
	if err != nil {
		return Response{}, err
	}
	if len(body) == 0 {
		return Response{}, types.NewError(ErrCodeSendFailed, "gandalf returned an empty response")
	}

	answer, err := extractJSONPath(answerPath, body)
	if err != nil {
		answer = string(body)
	}
	t.logger.Debug("gandalf replied", "level", t.level, "bytes", len(body))

	return Response{Pieces: []*memory.Piece{
		NewResponsePiece(piece, t.Identifier(), answer, types.DataTypeText),
	}}, nil
}

// PasswordResult is Gandalf's verdict on a password guess.
type PasswordResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckPassword asks Gandalf whether password is correct for this level.
func (t *GandalfTarget) CheckPassword(ctx context.Context, password string) (PasswordResult, error) {
	body, err := t.post(ctx, "/guess-password", url.Values{
		"defender": {string(t.level)},
		"password": {password},
	})
	if err != nil {
		return PasswordResult{}, err
	}

	var res PasswordResult
	if err := json.Unmarshal(body, &res); err != nil {
		return PasswordResult{}, types.WrapError(ErrCodeExtractFailed, "failed to decode password check", err)
	}
	return res, nil
}

func (t *GandalfTarget) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.WrapError(ErrCodeInvalidRequest, "failed to build gandalf request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, NewUnavailableError("gandalf", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewUnavailableError("gandalf", fmt.Errorf("failed to read response body: %w", err))
	}
	if err := checkStatus("gandalf", resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (t *GandalfTarget) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
