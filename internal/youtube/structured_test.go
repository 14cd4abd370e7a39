package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

type apiStub struct {
	mu       sync.Mutex
	paths    []string
	handlers map[string]http.HandlerFunc
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	for suffix, h := range s.handlers {
		if strings.HasSuffix(r.URL.Path, "/"+suffix) {
			h(w, r)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *apiStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

func apiError(code int, reason string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":"%s","errors":[{"reason":"%s","message":"%s"}]}}`,
		code, reason, reason, reason)
}

func newStubbedSource(t *testing.T, handlers map[string]http.HandlerFunc, opts ...StructuredOption) (*StructuredSource, *apiStub) {
	t.Helper()
	stub := &apiStub{handlers: handlers}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	src, err := NewStructuredSource(context.Background(), "test-key",
		[]option.ClientOption{option.WithEndpoint(srv.URL + "/")}, opts...)
	require.NoError(t, err)
	return src, stub
}

func TestNewStructuredSource_RequiresKey(t *testing.T) {
	_, err := NewStructuredSource(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestStructuredSource_Video(t *testing.T) {
	src, _ := newStubbedSource(t, map[string]http.HandlerFunc{
		"videos": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			writeJSON(w, http.StatusOK, `{"items":[{
				"id":"dQw4w9WgXcQ",
				"snippet":{"title":"Never Gonna","channelId":"UCabc","channelTitle":"Rick",
					"publishedAt":"2009-10-25T06:57:33Z",
					"thumbnails":{"default":{"url":"https://i.ytimg.com/d.jpg"},"high":{"url":"https://i.ytimg.com/hi.jpg"}}},
				"contentDetails":{"duration":"PT3M33S"},
				"statistics":{"viewCount":"1500"}}]}`)
		},
	})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetVideo, ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "dQw4w9WgXcQ", rec[retrieval.FieldVideoID])
	assert.Equal(t, "Never Gonna", rec["title"])
	assert.Equal(t, "UCabc", rec["channel_id"])
	assert.Equal(t, "PT3M33S", rec["duration"])
	assert.Equal(t, uint64(1500), rec["view_count"])
	assert.Equal(t, "https://i.ytimg.com/hi.jpg", rec["thumbnail_url"])
	assert.Equal(t, int64(1), src.QuotaUsed())
}

func TestStructuredSource_VideoMissingIsNotFound(t *testing.T) {
	src, _ := newStubbedSource(t, map[string]http.HandlerFunc{
		"videos": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"items":[]}`)
		},
	})

	_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetVideo, ID: "aaaaaaaaaaa"})
	require.Error(t, err)
	assert.ErrorIs(t, err, retrieval.ErrNotFound)
	assert.ErrorIs(t, err, errEmptyResponse)
}

func TestStructuredSource_ChannelUsesUploadsPlaylist(t *testing.T) {
	src, stub := newStubbedSource(t, map[string]http.HandlerFunc{
		"channels": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"items":[{"id":"UCabc","contentDetails":{"relatedPlaylists":{"uploads":"UUabc"}}}]}`)
		},
		"playlistItems": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "UUabc", r.URL.Query().Get("playlistId"))
			writeJSON(w, http.StatusOK, `{"items":[
				{"snippet":{"title":"one","position":0},"contentDetails":{"videoId":"v1"}},
				{"snippet":{"title":"two","position":1},"contentDetails":{"videoId":"v2"}}]}`)
		},
	})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetChannel, ID: "UCabc", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "v1", records[0][retrieval.FieldVideoID])
	assert.Equal(t, "UCabc", records[1]["channel_id"])
	assert.Equal(t, "UUabc", records[1]["playlist_id"])
	assert.Equal(t, 2, stub.calls())
}

func TestStructuredSource_SearchPaginatesAndCountsQuota(t *testing.T) {
	var units []int
	src, stub := newStubbedSource(t, map[string]http.HandlerFunc{
		"search": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "golang", r.URL.Query().Get("q"))
			assert.Equal(t, "video", r.URL.Query().Get("type"))
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, http.StatusOK, `{"nextPageToken":"p2","items":[
					{"id":{"videoId":"s1"},"snippet":{"title":"a"}},
					{"id":{"videoId":"s2"},"snippet":{"title":"b"}}]}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"items":[
				{"id":{"videoId":"s3"},"snippet":{"title":"c"}},
				{"id":{"channelId":"UCskip"}},
				{"id":{"videoId":"s4"},"snippet":{"title":"d"}}]}`)
		},
	}, WithQuotaObserver(func(u int) { units = append(units, u) }))

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetSearch, ID: "golang", MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "s3", records[2][retrieval.FieldVideoID])
	assert.Equal(t, "golang", records[0]["query"])
	assert.Equal(t, 2, stub.calls())
	assert.Equal(t, []int{100, 100}, units)
	assert.Equal(t, int64(200), src.QuotaUsed())
}

func TestStructuredSource_Comments(t *testing.T) {
	src, _ := newStubbedSource(t, map[string]http.HandlerFunc{
		"commentThreads": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "plainText", r.URL.Query().Get("textFormat"))
			writeJSON(w, http.StatusOK, `{"items":[{"id":"c1","snippet":{"topLevelComment":{"snippet":{
				"textDisplay":"great","authorDisplayName":"bob","publishedAt":"2026-10-01T00:00:00Z",
				"authorChannelId":{"value":"UCbob"}}}}},
				{"id":"broken","snippet":{}}]}`)
		},
	})

	records, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetComments, ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c1", records[0]["comment_id"])
	assert.Equal(t, "great", records[0]["text"])
	assert.Equal(t, "UCbob", records[0]["author_channel_id"])
	assert.Equal(t, "dQw4w9WgXcQ", records[0][retrieval.FieldVideoID])
}

func TestStructuredSource_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		want   error
	}{
		{name: "missing video", status: http.StatusNotFound, reason: "videoNotFound", want: retrieval.ErrNotFound},
		{name: "comments disabled", status: http.StatusForbidden, reason: "commentsDisabled", want: retrieval.ErrNotFound},
		{name: "quota exceeded", status: http.StatusForbidden, reason: "quotaExceeded", want: retrieval.ErrSourceUnavailable},
		{name: "rate limited", status: http.StatusTooManyRequests, reason: "rateLimitExceeded", want: retrieval.ErrSourceUnavailable},
		{name: "bad key", status: http.StatusBadRequest, reason: "keyInvalid", want: retrieval.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newStubbedSource(t, map[string]http.HandlerFunc{
				"commentThreads": func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, tt.status, apiError(tt.status, tt.reason))
				},
			})

			_, err := src.Fetch(context.Background(), retrieval.Request{Target: retrieval.TargetComments, ID: "dQw4w9WgXcQ"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var srcErr *retrieval.SourceError
			require.True(t, errors.As(err, &srcErr))
			assert.Equal(t, StructuredSourceName, srcErr.Source)
		})
	}
}

func TestStructuredSource_UnsupportedTarget(t *testing.T) {
	src, stub := newStubbedSource(t, nil)
	_, err := src.Fetch(context.Background(), retrieval.Request{Target: "user", ID: "x"})
	assert.ErrorIs(t, err, retrieval.ErrNotFound)
	assert.Zero(t, stub.calls())
}

func TestClassify_PassesSourceErrorsThrough(t *testing.T) {
	orig := retrieval.NotFound("other", errors.New("gone"))
	assert.Same(t, orig, classify(orig))
	assert.ErrorIs(t, classify(errors.New("connection reset")), retrieval.ErrSourceUnavailable)
}
