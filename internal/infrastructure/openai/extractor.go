// Package openai extracts structured reservation fields from document text
// using the chat-completions API. The response is schema-validated here so
// nothing downstream has to trust a loosely-typed blob.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/example/reservation-intake/internal/domain/reservation"
	"github.com/example/reservation-intake/internal/retry"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// Config carries the client settings. Retry bounds the HTTP attempts; the
// reconciliation engine itself never retries extraction.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Retry   retry.Policy
	Audit   reservation.AuditLog
}

type Client struct {
	hc  *http.Client
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		hc:  &http.Client{Timeout: 60 * time.Second},
		cfg: cfg,
	}
}

const systemPrompt = "You are a JSON extraction engine for Hebrew PDF purchase orders. " +
	"Identify fields by their Hebrew labels: reservation_number after \"מס' הזמנה\", " +
	"edition after \"מהדורה\" (0 = initial issue). " +
	"status is \"cancelled\" for a cancellation notice, \"updated\" when edition >= 1, " +
	"otherwise \"future_order\". reserved_table is true only when the text contains " +
	"\"בהגשה\" and it is not negated. Return only a valid JSON object, no explanations."

const userPromptTemplate = `Extract this JSON structure from the order text below.
Faculty names may be split across lines; reconstruct them.

{
  "reservation_number": <int>,
  "edition": <int>,
  "order_limit": <number>,
  "faculty_email": "<string>",
  "faculty_name": "<string>",
  "date": "<dd/mm/yyyy>",
  "number_of_people": <int>,
  "reserved_table": <true/false>,
  "status": "<future_order|updated|cancelled>",
  "additional_description": "<string>"
}

ORDER TEXT:
%s`

// Extract reads the document text and asks the model for the field schema.
func (c *Client) Extract(ctx context.Context, documentRef string) (reservation.Fields, error) {
	text, err := os.ReadFile(documentRef)
	if err != nil {
		return reservation.Fields{}, &reservation.ExtractionError{DocumentRef: documentRef, Err: err}
	}

	var content string
	var tokens int
	err = c.cfg.Retry.Do(ctx, func() error {
		var reqErr error
		content, tokens, reqErr = c.complete(ctx, string(text))
		return reqErr
	})
	if err != nil {
		return reservation.Fields{}, &reservation.ExtractionError{DocumentRef: documentRef, Err: err}
	}

	fields, err := parseFields(content)
	if err != nil {
		return reservation.Fields{}, &reservation.ExtractionError{DocumentRef: documentRef, Err: err}
	}

	if c.cfg.Audit != nil {
		_ = c.cfg.Audit.Record(reservation.AuditEntry{
			Module:            "extractor",
			Event:             "extract_ok",
			ReservationNumber: fields.ReservationNumber,
			Edition:           fields.Edition,
			Filename:          filepath.Base(documentRef),
			TokenUsage:        tokens,
		})
	}
	return fields, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, text string) (string, int, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, strings.TrimSpace(text))},
		},
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", 0, fmt.Errorf("decode response (status=%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		if cr.Error != nil && cr.Error.Message != "" {
			return "", 0, fmt.Errorf("completion failed: %s (status=%d)", cr.Error.Message, resp.StatusCode)
		}
		return "", 0, fmt.Errorf("completion failed (status=%d)", resp.StatusCode)
	}
	if len(cr.Choices) == 0 {
		return "", 0, fmt.Errorf("completion returned no choices")
	}
	return cr.Choices[0].Message.Content, cr.Usage.TotalTokens, nil
}

// requiredKeys are the schema fields the model must return.
var requiredKeys = []string{
	"reservation_number", "edition", "order_limit", "faculty_email",
	"faculty_name", "date", "number_of_people", "reserved_table",
	"status", "additional_description",
}

// parseFields validates the model output against the fixed schema. Unknown
// keys are carried through in the Extra bag untouched.
func parseFields(content string) (reservation.Fields, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimFence(content)), &obj); err != nil {
		return reservation.Fields{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	for _, k := range requiredKeys {
		if _, ok := obj[k]; !ok {
			return reservation.Fields{}, fmt.Errorf("missing key %q", k)
		}
	}

	var f reservation.Fields
	var err error
	if f.ReservationNumber, err = asInt(obj["reservation_number"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("reservation_number: %w", err)
	}
	if f.Edition, err = asInt(obj["edition"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("edition: %w", err)
	}
	if f.OrderLimit, err = asFloat(obj["order_limit"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("order_limit: %w", err)
	}
	if f.FacultyEmail, err = asString(obj["faculty_email"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("faculty_email: %w", err)
	}
	if f.FacultyName, err = asString(obj["faculty_name"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("faculty_name: %w", err)
	}
	if f.Date, err = asString(obj["date"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("date: %w", err)
	}
	if obj["number_of_people"] == nil {
		f.NumberOfPeople = 0
	} else if f.NumberOfPeople, err = asInt(obj["number_of_people"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("number_of_people: %w", err)
	}
	reserved, ok := obj["reserved_table"].(bool)
	if !ok {
		return reservation.Fields{}, fmt.Errorf("reserved_table: expected bool, got %T", obj["reserved_table"])
	}
	f.ReservedTable = reserved
	if f.Status, err = asString(obj["status"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("status: %w", err)
	}
	if !reservation.ValidIncomingStatus(f.Status) {
		return reservation.Fields{}, fmt.Errorf("invalid status value %q", f.Status)
	}
	if f.AdditionalDescription, err = asString(obj["additional_description"]); err != nil {
		return reservation.Fields{}, fmt.Errorf("additional_description: %w", err)
	}

	known := map[string]bool{}
	for _, k := range requiredKeys {
		known[k] = true
	}
	for k, v := range obj {
		if known[k] {
			continue
		}
		if f.Extra == nil {
			f.Extra = map[string]any{}
		}
		f.Extra[k] = v
	}
	return f, nil
}

// trimFence strips a markdown code fence the model sometimes wraps around
// the JSON despite instructions.
func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}
