// Package sink delivers normalized sales to storage, logs and webhooks.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/salewatch/internal/sale"
)

const defaultTemplate = "SALE {{.ProviderName}} {{short_addr .NFTContract}} #{{.NFTID}} for {{.Price}} {{.TokenSymbol}} tx {{short_addr .TransactionHash}}"

// Payload is the data passed to message templates. Sale fields are promoted,
// so templates can use {{.NFTContract}} or {{.SoldAtString}} directly.
type Payload struct {
	sale.SaleEntity
	Fields map[string]any
}

// Webhook posts a rendered message for every sale.
type Webhook struct {
	url      string
	method   string
	render   *template.Template
	client   *http.Client
	headers  map[string]string
	withSale bool
}

// NewWebhook builds a generic HTTP sink. The body carries the rendered text and the sale fields.
func NewWebhook(url, method, tmpl string, headers map[string]string) (*Webhook, error) {
	w, err := newWebhook(url, method, tmpl, headers)
	if err != nil {
		return nil, err
	}
	w.withSale = true
	return w, nil
}

// NewSlack builds a Slack-compatible webhook sink.
func NewSlack(url, tmpl string) (*Webhook, error) {
	return newWebhook(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeams builds a Teams-compatible webhook sink.
func NewTeams(url, tmpl string) (*Webhook, error) {
	// Teams accepts simple {text: "..."} payloads.
	return newWebhook(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

func newWebhook(url, method, tmpl string, headers map[string]string) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{"Content-Type": "application/json"}
	}
	return &Webhook{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

func (w *Webhook) Save(ctx context.Context, s sale.SaleEntity) (sale.SaleEntity, error) {
	payload := Payload{SaleEntity: s, Fields: s.Fields()}
	text, err := executeTemplate(w.render, payload)
	if err != nil {
		return s, err
	}
	body := map[string]any{"text": text}
	if w.withSale {
		body["sale"] = payload.Fields
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return s, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader(reqBody))
	if err != nil {
		return s, fmt.Errorf("new request: %w", err)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return s, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return s, fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return s, nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
