package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/parleychat/parley/store"
)

const (
	// maxExtractedTextChars caps how much extracted attachment text is folded
	// into a single user message.
	maxExtractedTextChars = 100000
	// maxAttachmentBytes caps how much of an attachment is downloaded.
	maxAttachmentBytes = 20 << 20

	attachmentFetchTimeout = 30 * time.Second

	attachmentHeaderPrefix = "\n\n--- Content from attachment:"
	attachmentFooter       = "---\n--- End of attachment ---"
	errorNotePrefix        = "\n\n--- System Note: An error occurred while trying to extract text content from attachment:"
	errorNoteSuffix        = ". The file might be corrupted, password-protected, or in an unsupported format. ---"
	truncationNote         = " [Content truncated as it exceeded 100,000 characters]"
)

// Extractor downloads message attachments and folds their text content into
// the typed message text before the model sees it. Extraction is strictly
// best-effort: it never fails the turn, every per-attachment problem degrades
// to an inline note.
type Extractor struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewExtractor() *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: attachmentFetchTimeout},
		// Attachments are fetched sequentially; the limiter keeps a burst of
		// many-attachment messages from hammering the upstream file host.
		limiter: rate.NewLimiter(rate.Limit(4), 4),
	}
}

// Augment returns the message text with attachment content blocks appended.
// Image attachments are skipped (they are passed to the model as images, not
// text). When nothing changes, the original typed text is returned verbatim.
func (e *Extractor) Augment(ctx context.Context, message *store.Message) string {
	original := typedText(message)
	combined := original
	for _, part := range message.Parts {
		if part.Type != store.PartTypeFile || part.File == nil {
			continue
		}
		file := part.File
		if strings.HasPrefix(file.MediaType, "image/") {
			continue
		}

		name := file.Name
		if name == "" {
			name = "file"
		}
		text, err := e.extract(ctx, file)
		if err != nil {
			slog.Warn("attachment extraction failed",
				slog.String("message", message.ID),
				slog.String("attachment", name),
				slog.String("error", err.Error()))
			attachmentExtractionFailures.Inc()
			combined += fmt.Sprintf("%s %s%s", errorNotePrefix, name, errorNoteSuffix)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		note := ""
		if len(text) > maxExtractedTextChars {
			text = text[:maxExtractedTextChars]
			note = truncationNote
			attachmentTruncations.Inc()
		}
		combined += fmt.Sprintf("%s %s ---\n%s%s\n%s", attachmentHeaderPrefix, name, text, note, attachmentFooter)
	}
	return combined
}

func (e *Extractor) extract(ctx context.Context, file *store.FilePart) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "failed to wait for fetch slot")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch attachment")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return "", errors.Wrap(err, "failed to read attachment body")
	}

	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = resp.Header.Get("Content-Type")
	}
	switch {
	case strings.Contains(mediaType, "pdf"):
		return extractPDFText(body)
	case strings.Contains(mediaType, "html"):
		return extractHTMLText(body)
	case strings.HasPrefix(mediaType, "text/"),
		strings.Contains(mediaType, "json"),
		strings.Contains(mediaType, "xml"),
		strings.Contains(mediaType, "csv"),
		strings.Contains(mediaType, "yaml"):
		return string(body), nil
	default:
		return "", errors.Errorf("unsupported media type %q", mediaType)
	}
}

func extractPDFText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", errors.Wrap(err, "failed to open pdf")
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "failed to extract pdf text")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", errors.Wrap(err, "failed to read pdf text")
	}
	return buf.String(), nil
}

func extractHTMLText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// typedText joins the text parts of a message, preserving part order.
func typedText(message *store.Message) string {
	texts := []string{}
	for _, part := range message.Parts {
		if part.Type == store.PartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// replaceTypedText returns the message parts with all text parts replaced by
// a single text part holding the given text. Non-text parts keep their order.
func replaceTypedText(parts []store.Part, text string) []store.Part {
	updated := []store.Part{}
	for _, part := range parts {
		if part.Type != store.PartTypeText {
			updated = append(updated, part)
		}
	}
	return append(updated, store.NewTextPart(text))
}
