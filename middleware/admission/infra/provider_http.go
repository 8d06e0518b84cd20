package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// HTTPProvider implementa domain.ProviderClient contra um backend HTTP/JSON.
//
// Endpoints:
//   - POST <base>/call  {"prompt": ..., "meta": ...} → {"content": ..., "meta": ...}
//   - POST <base>/batch {"payloads": [...]}          → {"responses": [...]}
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type HTTPProviderOption func(*HTTPProvider)

// WithAPIKey liga autenticação Bearer nas chamadas.
func WithAPIKey(key string) HTTPProviderOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

func WithHTTPClient(c *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

func NewHTTPProvider(baseURL string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		// timeout generoso de transporte: quem corta a espera é o governor
		client: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type payloadJSON struct {
	Prompt string            `json:"prompt"`
	Meta   map[string]string `json:"meta,omitempty"`
}

type responseJSON struct {
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func (p *HTTPProvider) Call(ctx context.Context, payload domain.Payload) (domain.Response, error) {
	var out responseJSON
	err := p.post(ctx, "/call", payloadJSON{Prompt: payload.Prompt, Meta: payload.Meta}, &out)
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Content: out.Content, Meta: out.Meta}, nil
}

func (p *HTTPProvider) Batch(ctx context.Context, payloads []domain.Payload) ([]domain.Response, error) {
	req := struct {
		Payloads []payloadJSON `json:"payloads"`
	}{Payloads: make([]payloadJSON, len(payloads))}
	for i, pl := range payloads {
		req.Payloads[i] = payloadJSON{Prompt: pl.Prompt, Meta: pl.Meta}
	}

	var out struct {
		Responses []responseJSON `json:"responses"`
	}
	if err := p.post(ctx, "/batch", req, &out); err != nil {
		return nil, err
	}
	if len(out.Responses) != len(payloads) {
		return nil, fmt.Errorf("provider: batch devolveu %d respostas para %d payloads", len(out.Responses), len(payloads))
	}

	resps := make([]domain.Response, len(out.Responses))
	for i, r := range out.Responses {
		resps[i] = domain.Response{Content: r.Content, Meta: r.Meta}
	}
	return resps, nil
}

func (p *HTTPProvider) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("provider: serializando payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("provider: montando request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: chamando %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider: %s respondeu %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decodificando resposta de %s: %w", endpoint, err)
	}
	return nil
}
