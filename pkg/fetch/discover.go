package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"patchsage/internal/util"
)

const (
	// DefaultTagURL lists all patch-notes articles, newest first.
	DefaultTagURL = "https://playvalorant.com/en-us/news/tags/patch-notes/"

	defaultBaseURL = "https://playvalorant.com"
	defaultTitle   = "Valorant Patch Notes"
)

// ErrNoPatchLinks indicates the tag page carried no patch-notes
// article links.
var ErrNoPatchLinks = errors.New("no patch-notes links found on tag page")

// Article is a discovered patch-notes article. PatchID is empty when
// no version could be parsed from the link or its title.
type Article struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	PatchID string `json:"patch_id,omitempty"`
}

var versionRe = regexp.MustCompile(`(\d{1,2})[-.](\d{1,2})`)

// CurrentPatch fetches the tag page and returns the newest patch
// article it links to.
func (f *Fetcher) CurrentPatch(ctx context.Context, tagURL string) (Article, error) {
	if tagURL == "" {
		tagURL = DefaultTagURL
	}
	body, err := f.Get(ctx, tagURL)
	if err != nil {
		return Article{}, err
	}
	return ExtractCurrentPatchLink(body, defaultBaseURL)
}

type linkCandidate struct {
	article Article
	version [2]int
	hasVer  bool
	order   int
}

// ExtractCurrentPatchLink picks the newest patch-notes article linked
// from a tag page. Versioned links win over unversioned ones; the
// highest version wins, and a version tie keeps the link appearing
// earliest on the page.
func ExtractCurrentPatchLink(data []byte, base string) (Article, error) {
	anchors, err := collectAnchors(data)
	if err != nil {
		return Article{}, fmt.Errorf("parse tag page: %w", err)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return Article{}, fmt.Errorf("parse base url: %w", err)
	}

	var candidates []linkCandidate
	seen := make(map[string]bool)
	for _, a := range anchors {
		href := strings.TrimSpace(a.href)
		lowered := strings.ToLower(href)
		if href == "" ||
			!strings.Contains(lowered, "patch-notes") ||
			strings.Contains(lowered, "/news/tags/patch-notes") ||
			!strings.Contains(lowered, "/news/") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := baseURL.ResolveReference(ref).String()
		if seen[resolved] {
			continue
		}
		seen[resolved] = true

		title := util.NormalizeSpace(a.text)
		if title == "" {
			title = defaultTitle
		}

		c := linkCandidate{
			article: Article{Title: title, URL: resolved},
			order:   len(candidates),
		}
		if v, ok := parseVersion(resolved); ok {
			c.version, c.hasVer = v, true
		} else if v, ok := parseVersion(title); ok {
			c.version, c.hasVer = v, true
		}
		if c.hasVer {
			c.article.PatchID = fmt.Sprintf("%d.%02d", c.version[0], c.version[1])
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return Article{}, ErrNoPatchLinks
	}

	versioned := make([]linkCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.hasVer {
			versioned = append(versioned, c)
		}
	}
	if len(versioned) == 0 {
		return candidates[0].article, nil
	}

	sort.SliceStable(versioned, func(i, j int) bool {
		a, b := versioned[i], versioned[j]
		if a.version[0] != b.version[0] {
			return a.version[0] > b.version[0]
		}
		if a.version[1] != b.version[1] {
			return a.version[1] > b.version[1]
		}
		return a.order < b.order
	})
	return versioned[0].article, nil
}

func parseVersion(s string) ([2]int, bool) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return [2]int{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return [2]int{major, minor}, true
}

type anchor struct {
	href string
	text string
}

func collectAnchors(data []byte) ([]anchor, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	var anchors []anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var a anchor
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					a.href = attr.Val
					break
				}
			}
			a.text = nodeText(n)
			anchors = append(anchors, a)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return anchors, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
