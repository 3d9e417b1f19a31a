// Package snapshot renders a post-behavior capture of the page: the fully
// loaded DOM as HTML, readable-article Markdown, or plain text, plus page
// metadata. Snapshots are taken after a behavior run so lazily loaded
// content is present in the capture.
package snapshot

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
	"github.com/webrecorder/autobrowser/models"
)

// Formats accepted by Take.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be considered valid. Below this threshold we assume
// the algorithm failed to locate the main content and fall back to raw HTML.
const minContentLength = 50

// Renderer converts captured HTML into snapshot formats. The markdown
// converter is reusable and goroutine-safe, so one Renderer serves all
// requests.
type Renderer struct {
	md *converter.Converter
}

// NewRenderer creates a Renderer with the shared markdown converter.
func NewRenderer() *Renderer {
	return &Renderer{md: newMarkdownConverter()}
}

// newMarkdownConverter configures html-to-markdown v2:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta, link,
//     input, textarea, HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: preserves table structure with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Take renders rawHTML into the requested format. Readability failures never
// fail the snapshot; they degrade to the raw capture.
func (r *Renderer) Take(rawHTML, sourceURL, format string) (*models.SnapshotResult, error) {
	switch format {
	case FormatHTML, "":
		article, _ := extractArticle(rawHTML, sourceURL)
		return &models.SnapshotResult{
			Format:   FormatHTML,
			Content:  rawHTML,
			Metadata: EnrichMetadata(rawHTML, metadataFrom(article, sourceURL)),
		}, nil

	case FormatMarkdown:
		article, ok := extractArticle(rawHTML, sourceURL)
		content := article.Content
		if !ok {
			content = rawHTML
		}
		domain := ""
		if u, err := nurl.Parse(sourceURL); err == nil {
			domain = u.Scheme + "://" + u.Host
		}
		md, err := r.md.ConvertString(content, converter.WithDomain(domain))
		if err != nil {
			return nil, models.NewBehaviorError(models.ErrCodeInternal,
				"markdown conversion failed", err)
		}
		return &models.SnapshotResult{
			Format:   FormatMarkdown,
			Content:  md,
			Metadata: EnrichMetadata(rawHTML, metadataFrom(article, sourceURL)),
		}, nil

	case FormatText:
		article, _ := extractArticle(rawHTML, sourceURL)
		return &models.SnapshotResult{
			Format:   FormatText,
			Content:  strings.TrimSpace(article.TextContent),
			Metadata: EnrichMetadata(rawHTML, metadataFrom(article, sourceURL)),
		}, nil

	default:
		return nil, models.NewBehaviorError(models.ErrCodeInvalidInput,
			"unknown snapshot format: "+format, nil)
	}
}

// extractArticle runs the Mozilla Readability algorithm on rawHTML.
//
// Fallback behaviour (a snapshot must never fail just because readability
// choked):
//   - If URL parsing fails           -> raw HTML in Content
//   - If readability.FromReader errs -> raw HTML in Content
//   - If extracted TextContent < 50  -> raw HTML in Content
func extractArticle(rawHTML, sourceURL string) (readability.Article, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, falling back to raw HTML",
			"url", sourceURL, "error", err,
		)
		return fallbackArticle(rawHTML), false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, falling back to raw HTML",
			"url", sourceURL, "error", err,
		)
		return fallbackArticle(rawHTML), false
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Warn("readability: extracted content too short, falling back to raw HTML",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return fallbackArticle(rawHTML), false
	}

	return article, true
}

// fallbackArticle stands in when readability fails: the HTML and Markdown
// formats keep the raw capture, the text format gets a tag-stripped version
// so it never emits markup.
func fallbackArticle(rawHTML string) readability.Article {
	return readability.Article{
		Content:     rawHTML,
		TextContent: stripTags(rawHTML),
	}
}

func metadataFrom(article readability.Article, sourceURL string) models.Metadata {
	return models.Metadata{
		Title:       article.Title,
		Description: article.Excerpt,
		SiteName:    article.SiteName,
		Author:      article.Byline,
		Language:    article.Language,
		SourceURL:   sourceURL,
	}
}
