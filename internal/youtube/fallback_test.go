package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

const watchPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Never Gonna Give You Up">
<meta property="og:description" content="The official video">
<meta property="og:image" content="https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg">
<meta name="keywords" content="rick, astley , 80s">
</head><body>
<div itemscope itemtype="http://schema.org/VideoObject">
<meta itemprop="datePublished" content="2009-10-25">
<meta itemprop="channelId" content="UCuAXFkgsw1L7xaCfnd5JJOw">
<meta itemprop="interactionCount" content="1500000000">
<meta itemprop="duration" content="PT3M33S">
<span itemprop="author" itemscope><link itemprop="name" content="Rick Astley"></span>
</div>
</body></html>`

const playlistPage = `<!DOCTYPE html>
<html><head><title>playlist</title></head><body>
<script>var ytInitialData = {"contents":{"list":[
 {"playlistVideoRenderer":{"videoId":"aaaaaaaaaaa","title":{"runs":[{"text":"First "},{"text":"video"}]},"index":{"simpleText":"1"},"lengthText":{"simpleText":"3:33"}}},
 {"playlistVideoRenderer":{"videoId":"bbbbbbbbbbb","title":{"simpleText":"Second {video}"},"index":{"simpleText":"2"}}},
 {"playlistVideoRenderer":{"videoId":"ccccccccccc","title":{"simpleText":"Third \"quoted\""},"index":{"simpleText":"3"}}}
]}};</script>
</body></html>`

const commentsPage = `<html><body>
<script>var ytInitialData = {"a":{"commentRenderer":{"commentId":"c1","contentText":{"runs":[{"text":"nice"}]},"authorText":{"simpleText":"bob"},"voteCount":{"simpleText":"4"}}},
"b":{"commentRenderer":{"commentId":"c2","contentText":{"simpleText":"meh"},"authorText":{"simpleText":"eve"}}}};</script>
</body></html>`

type requestLog struct {
	mu   sync.Mutex
	uris []string
}

func (l *requestLog) add(uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uris = append(l.uris, uri)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.uris...)
}

func pageServer(t *testing.T, status int, body string, seen *requestLog) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen.add(r.URL.RequestURI())
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestFallbackSource_Video(t *testing.T) {
	var seen requestLog
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, watchPage, &seen), Timeout: 5 * time.Second})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetVideo, ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"/watch?v=dQw4w9WgXcQ"}, seen.all())

	rec := records[0]
	assert.Equal(t, "dQw4w9WgXcQ", rec[retrieval.FieldVideoID])
	assert.Equal(t, "Never Gonna Give You Up", rec["title"])
	assert.Equal(t, "UCuAXFkgsw1L7xaCfnd5JJOw", rec["channel_id"])
	assert.Equal(t, "1500000000", rec["view_count"])
	assert.Equal(t, "Rick Astley", rec["channel_title"])
	assert.Equal(t, []string{"rick", "astley", "80s"}, rec["tags"])
}

func TestFallbackSource_VideoWithoutMetadata(t *testing.T) {
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, "<html><body>consent</body></html>", nil)})

	_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetVideo, ID: "dQw4w9WgXcQ"})
	assert.ErrorIs(t, err, retrieval.ErrSourceUnavailable)
}

func TestFallbackSource_Playlist(t *testing.T) {
	var seen requestLog
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, playlistPage, &seen)})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetPlaylist, ID: "PL123", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"/playlist?list=PL123"}, seen.all())

	assert.Equal(t, "aaaaaaaaaaa", records[0][retrieval.FieldVideoID])
	assert.Equal(t, "First video", records[0]["title"])
	assert.Equal(t, "1", records[0]["position"])
	assert.Equal(t, "3:33", records[0]["duration"])
	assert.Equal(t, "Second {video}", records[1]["title"])
	assert.Equal(t, "PL123", records[1]["playlist_id"])
}

func TestFallbackSource_SearchWithoutInitialData(t *testing.T) {
	var seen requestLog
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, "<html></html>", &seen)})

	_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetSearch, ID: "go tips"})
	assert.ErrorIs(t, err, retrieval.ErrSourceUnavailable)
	assert.Equal(t, []string{"/results?search_query=go+tips&sp=" + searchVideosOnly}, seen.all())
}

func TestFallbackSource_Comments(t *testing.T) {
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, commentsPage, nil)})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetComments, ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0]["comment_id"])
	assert.Equal(t, "nice", records[0]["text"])
	assert.Equal(t, "4", records[0]["like_count"])
	assert.Equal(t, "eve", records[1]["author"])
}

func TestFallbackSource_CommentsNotRendered(t *testing.T) {
	src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, http.StatusOK, watchPage, nil)})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetComments, ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFallbackSource_HTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: retrieval.ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, want: retrieval.ErrSourceUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, want: retrieval.ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFallbackSource(FallbackConfig{BaseURL: pageServer(t, tt.status, "", nil)})
			_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetVideo, ID: "dQw4w9WgXcQ"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFallbackSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	src := NewFallbackSource(FallbackConfig{BaseURL: base, Timeout: time.Second})
	_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetChannel, ID: "UCabc"})
	assert.ErrorIs(t, err, retrieval.ErrSourceUnavailable)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trailing code", in: `{"a":1};var x = {}`, want: `{"a":1}`},
		{name: "nested", in: `{"a":{"b":[{"c":2}]}} rest`, want: `{"a":{"b":[{"c":2}]}}`},
		{name: "braces in strings", in: `{"a":"}{","b":"\"}"};`, want: `{"a":"}{","b":"\"}"}`},
		{name: "not an object", in: `[1,2]`, want: ""},
		{name: "unterminated", in: `{"a":{`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(extractJSON([]byte(tt.in))))
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "plain", text(map[string]any{"simpleText": "plain"}))
	assert.Equal(t, "ab", text(map[string]any{"runs": []any{
		map[string]any{"text": "a"}, map[string]any{"text": "b"},
	}}))
	assert.Equal(t, "", text("raw"))
}
