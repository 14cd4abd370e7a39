package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

const (
	// FallbackSourceName identifies the scraping source in errors and logs.
	FallbackSourceName = "youtube-web"

	// DefaultBaseURL is the public site the fallback scrapes.
	DefaultBaseURL = "https://www.youtube.com"
	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	initialDataMarker = "var ytInitialData = "
	searchVideosOnly  = "EgIQAQ%3D%3D"
	maxPageSize       = 8 * 1024 * 1024
)

// FallbackConfig configures a FallbackSource.
type FallbackConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	ParseSlots int // concurrent page parses; defaults to 1
	Client     *http.Client
}

// FallbackSource scrapes public pages. It yields fewer fields than the API
// and is only used when the API is unavailable.
type FallbackSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
	parse     *semaphore.Weighted
}

// NewFallbackSource creates a scraper.
func NewFallbackSource(cfg FallbackConfig) *FallbackSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ParseSlots <= 0 {
		cfg.ParseSlots = 1
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &FallbackSource{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		parse:     semaphore.NewWeighted(int64(cfg.ParseSlots)),
	}
}

func (f *FallbackSource) Name() string { return FallbackSourceName }

// Fetch downloads the page for req and extracts records from it.
func (f *FallbackSource) Fetch(ctx context.Context, req retrieval.Request) ([]retrieval.Record, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	var pageURL string
	switch req.Target {
	case retrieval.TargetVideo, retrieval.TargetComments:
		pageURL = f.baseURL + "/watch?v=" + url.QueryEscape(req.ID)
	case retrieval.TargetChannel:
		pageURL = f.baseURL + "/channel/" + url.PathEscape(req.ID) + "/videos"
	case retrieval.TargetPlaylist:
		pageURL = f.baseURL + "/playlist?list=" + url.QueryEscape(req.ID)
	case retrieval.TargetSearch:
		pageURL = f.baseURL + "/results?search_query=" + url.QueryEscape(req.ID) + "&sp=" + searchVideosOnly
	default:
		return nil, retrieval.NotFound(FallbackSourceName, fmt.Errorf("unsupported target %q", req.Target))
	}

	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if err := f.parse.Acquire(ctx, 1); err != nil {
		return nil, retrieval.Unavailable(FallbackSourceName, err)
	}
	defer f.parse.Release(1)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, retrieval.Unavailable(FallbackSourceName, fmt.Errorf("parse %s: %w", pageURL, err))
	}

	switch req.Target {
	case retrieval.TargetVideo:
		return videoFromMeta(doc, req.ID)
	case retrieval.TargetComments:
		data, err := initialData(doc)
		if err != nil {
			// comments are loaded lazily; a page without them is not an error
			return []retrieval.Record{}, nil
		}
		return commentsFromInitialData(data, req.ID, limit), nil
	default:
		data, err := initialData(doc)
		if err != nil {
			return nil, retrieval.Unavailable(FallbackSourceName, fmt.Errorf("%s: %w", pageURL, err))
		}
		records := videosFromInitialData(data, rendererKeys(req.Target), limit)
		for _, r := range records {
			switch req.Target {
			case retrieval.TargetChannel:
				r["channel_id"] = req.ID
			case retrieval.TargetPlaylist:
				r["playlist_id"] = req.ID
			case retrieval.TargetSearch:
				r["query"] = req.ID
			}
		}
		return records, nil
	}
}

func (f *FallbackSource) get(ctx context.Context, pageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, retrieval.NotFound(FallbackSourceName, err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, retrieval.Unavailable(FallbackSourceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retrieval.NotFound(FallbackSourceName, fmt.Errorf("GET %s: HTTP %d", pageURL, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, retrieval.Unavailable(FallbackSourceName, fmt.Errorf("GET %s: HTTP %d", pageURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, retrieval.Unavailable(FallbackSourceName, fmt.Errorf("read %s: %w", pageURL, err))
	}
	return body, nil
}

var errNoInitialData = errors.New("ytInitialData not found")

// initialData finds the inline script assigning ytInitialData and decodes it.
func initialData(doc *goquery.Document) (any, error) {
	var raw []byte
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, initialDataMarker)
		if idx < 0 {
			return true
		}
		raw = extractJSON([]byte(text[idx+len(initialDataMarker):]))
		return raw == nil
	})
	if raw == nil {
		return nil, errNoInitialData
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode ytInitialData: %w", err)
	}
	return data, nil
}

// extractJSON returns the JSON object starting at b[0] by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

func videoFromMeta(doc *goquery.Document, videoID string) ([]retrieval.Record, error) {
	meta := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}

	title := meta(`meta[property="og:title"]`)
	if title == "" {
		title = meta(`meta[name="title"]`)
	}
	if title == "" {
		return nil, retrieval.Unavailable(FallbackSourceName, fmt.Errorf("video %s: no metadata in page", videoID))
	}

	rec := retrieval.Record{
		retrieval.FieldVideoID: videoID,
		"title":                title,
		"description":          meta(`meta[property="og:description"]`),
		"published_at":         meta(`meta[itemprop="datePublished"]`),
		"channel_id":           meta(`meta[itemprop="channelId"]`),
		"view_count":           meta(`meta[itemprop="interactionCount"]`),
		"duration":             meta(`meta[itemprop="duration"]`),
		"thumbnail_url":        meta(`meta[property="og:image"]`),
	}
	if author, ok := doc.Find(`span[itemprop="author"] link[itemprop="name"]`).First().Attr("content"); ok {
		rec["channel_title"] = author
	}
	if kw := meta(`meta[name="keywords"]`); kw != "" {
		tags := strings.Split(kw, ",")
		for i := range tags {
			tags[i] = strings.TrimSpace(tags[i])
		}
		rec["tags"] = tags
	}
	return []retrieval.Record{rec}, nil
}

func rendererKeys(target retrieval.Target) []string {
	switch target {
	case retrieval.TargetPlaylist:
		return []string{"playlistVideoRenderer"}
	case retrieval.TargetChannel:
		return []string{"videoRenderer", "gridVideoRenderer"}
	default:
		return []string{"videoRenderer"}
	}
}

// videosFromInitialData walks the tree for renderer objects carrying a videoId.
func videosFromInitialData(data any, keys []string, limit int) []retrieval.Record {
	records := []retrieval.Record{}
	var walk func(v any)
	walk = func(v any) {
		if len(records) >= limit {
			return
		}
		switch node := v.(type) {
		case map[string]any:
			for _, key := range keys {
				if r, ok := node[key].(map[string]any); ok {
					if id, _ := r["videoId"].(string); id != "" {
						records = append(records, videoRecord(id, r))
						return
					}
				}
			}
			for _, key := range slices.Sorted(maps.Keys(node)) {
				walk(node[key])
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(data)
	return records
}

func videoRecord(id string, r map[string]any) retrieval.Record {
	rec := retrieval.Record{
		retrieval.FieldVideoID: id,
		"title":                text(r["title"]),
		"channel_title":        firstNonEmpty(text(r["ownerText"]), text(r["shortBylineText"])),
		"published_at":         text(r["publishedTimeText"]),
		"view_count":           text(r["viewCountText"]),
		"duration":             text(r["lengthText"]),
		"description":          text(r["descriptionSnippet"]),
	}
	if idx := text(r["index"]); idx != "" {
		rec["position"] = idx
	}
	return rec
}

func commentsFromInitialData(data any, videoID string, limit int) []retrieval.Record {
	records := []retrieval.Record{}
	var walk func(v any)
	walk = func(v any) {
		if len(records) >= limit {
			return
		}
		switch node := v.(type) {
		case map[string]any:
			if c, ok := node["commentRenderer"].(map[string]any); ok {
				records = append(records, retrieval.Record{
					"comment_id":           c["commentId"],
					retrieval.FieldVideoID: videoID,
					"text":                 text(c["contentText"]),
					"author":               text(c["authorText"]),
					"published_at":         text(c["publishedTimeText"]),
					"like_count":           text(c["voteCount"]),
				})
				return
			}
			for _, key := range slices.Sorted(maps.Keys(node)) {
				walk(node[key])
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(data)
	return records
}

// text flattens {"simpleText": ...} and {"runs": [{"text": ...}]} values.
func text(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := m["simpleText"].(string); ok {
		return s
	}
	runs, _ := m["runs"].([]any)
	var b strings.Builder
	for _, run := range runs {
		if r, ok := run.(map[string]any); ok {
			if s, ok := r["text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
