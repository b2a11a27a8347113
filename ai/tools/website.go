package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/parleychat/parley/ai"
)

// maxWebsiteTextChars caps the extracted page text handed back to the model.
const maxWebsiteTextChars = 20000

var websiteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "The URL of the webpage to fetch content from"}
	},
	"required": ["url"]
}`)

// ReadWebsite fetches a webpage and returns its readable text content.
type ReadWebsite struct {
	client *http.Client
}

var _ ai.Tool = (*ReadWebsite)(nil)

func NewReadWebsite() *ReadWebsite {
	return &ReadWebsite{client: &http.Client{Timeout: 20 * time.Second}}
}

func (t *ReadWebsite) Name() string {
	return "read_website"
}

func (t *ReadWebsite) Description() string {
	return "Fetch and return the text content of a webpage for easy readability"
}

func (t *ReadWebsite) InputSchema() json.RawMessage {
	return websiteSchema
}

func (t *ReadWebsite) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errors.Wrap(err, "invalid website input")
	}
	if args.URL == "" {
		return nil, errors.New("url required")
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		args.URL = "https://" + args.URL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build website request")
	}
	req.Header.Set("User-Agent", "parley/1.0 (+https://github.com/parleychat/parley)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", args.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch %s: status %d", args.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}

	// Strip non-content elements before extracting text.
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := normalizeWhitespace(doc.Find("body").Text())
	if len(text) > maxWebsiteTextChars {
		text = text[:maxWebsiteTextChars] + " [truncated]"
	}

	return map[string]any{
		"url":     args.URL,
		"title":   title,
		"content": text,
		"status":  "success",
	}, nil
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
