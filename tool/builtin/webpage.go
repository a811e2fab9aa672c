package builtin

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/tool"
)

// WebpageOptions configures the read_webpage tool.
type WebpageOptions struct {
	Client   *http.Client
	MaxBytes int64 // response body limit
	MaxChars int   // returned text limit, 0 means unlimited
}

var defaultWebpageOptions = WebpageOptions{
	Client:   &http.Client{Timeout: 30 * time.Second},
	MaxBytes: 2 << 20,
	MaxChars: 20000,
}

func mergeWebpage(dst, src WebpageOptions) WebpageOptions {
	if src.Client != nil {
		dst.Client = src.Client
	}

	if src.MaxBytes > 0 {
		dst.MaxBytes = src.MaxBytes
	}

	if src.MaxChars > 0 {
		dst.MaxChars = src.MaxChars
	}

	return dst
}

type readWebpageArgs struct {
	URL string `json:"url" jsonschema:"required,description=Page URL (http or https)"`
}

// NewReadWebpage returns a tool fetching a page and returning its visible
// text without markup.
func NewReadWebpage(optFns ...func(o *WebpageOptions)) *tool.FunctionTool {
	opts := defaultWebpageOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewTypedTool(ReadWebpageName, "Fetch a web page and return only its text (no markup).",
		func(toolCtx *core.ToolContext, args readWebpageArgs) (any, error) {
			if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
				return nil, fmt.Errorf("unsupported url %q: only http and https are allowed", args.URL)
			}

			req, err := http.NewRequestWithContext(toolCtx.Context(), http.MethodGet, args.URL, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}

			resp, err := opts.Client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", args.URL, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, fmt.Errorf("fetch %s: unexpected status %s", args.URL, resp.Status)
			}

			text, err := ExtractText(io.LimitReader(resp.Body, opts.MaxBytes))
			if err != nil {
				return nil, err
			}

			if opts.MaxChars > 0 {
				if r := []rune(text); len(r) > opts.MaxChars {
					text = string(r[:opts.MaxChars])
				}
			}

			return map[string]any{"text": text}, nil
		})
}

// ExtractText returns the visible text of an HTML document, one trimmed
// text node per line. Script, style and similar non-content elements are
// skipped.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var (
		lines []string
		walk  func(n *html.Node)
	)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}

		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, strings.Join(strings.Fields(s), " "))
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return strings.Join(lines, "\n"), nil
}
