// Package youtube implements the two retrieval sources: the YouTube Data API
// v3 (structured) and scraping of public watch/browse pages (fallback).
package youtube

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

const (
	// StructuredSourceName identifies the API source in errors and logs.
	StructuredSourceName = "youtube-api"

	defaultMaxResults = 50
	apiPageSize       = 50
	commentsPageSize  = 100

	searchQuotaCost = 100
	listQuotaCost   = 1
)

// StructuredSource fetches records through the YouTube Data API v3.
type StructuredSource struct {
	service   *yt.Service
	quotaUsed atomic.Int64
	onQuota   func(units int)
}

// StructuredOption configures a StructuredSource.
type StructuredOption func(*StructuredSource)

// WithQuotaObserver is called with the estimated quota units of every API call.
func WithQuotaObserver(fn func(units int)) StructuredOption {
	return func(s *StructuredSource) { s.onQuota = fn }
}

// NewStructuredSource creates the API client. clientOpts are appended after
// the API key, so tests can point the client at a local endpoint.
func NewStructuredSource(ctx context.Context, apiKey string, clientOpts []option.ClientOption, opts ...StructuredOption) (*StructuredSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key required")
	}

	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	service, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	s := &StructuredSource{service: service}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *StructuredSource) Name() string { return StructuredSourceName }

// QuotaUsed returns the estimated quota units spent since creation.
func (s *StructuredSource) QuotaUsed() int64 {
	return s.quotaUsed.Load()
}

// Fetch dispatches on the request target.
func (s *StructuredSource) Fetch(ctx context.Context, req retrieval.Request) ([]retrieval.Record, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	var (
		records []retrieval.Record
		err     error
	)
	switch req.Target {
	case retrieval.TargetVideo:
		records, err = s.video(ctx, req.ID)
	case retrieval.TargetChannel:
		records, err = s.channelVideos(ctx, req.ID, limit)
	case retrieval.TargetPlaylist:
		records, err = s.playlistVideos(ctx, req.ID, limit)
	case retrieval.TargetSearch:
		records, err = s.search(ctx, req.ID, limit)
	case retrieval.TargetComments:
		records, err = s.comments(ctx, req.ID, limit)
	default:
		return nil, retrieval.NotFound(StructuredSourceName, fmt.Errorf("unsupported target %q", req.Target))
	}
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func (s *StructuredSource) track(units int) {
	s.quotaUsed.Add(int64(units))
	if s.onQuota != nil {
		s.onQuota(units)
	}
}

var errEmptyResponse = errors.New("no items returned")

func (s *StructuredSource) video(ctx context.Context, id string) ([]retrieval.Record, error) {
	resp, err := s.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(id).
		Context(ctx).
		Do()
	s.track(listQuotaCost)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, retrieval.NotFound(StructuredSourceName, fmt.Errorf("video %s: %w", id, errEmptyResponse))
	}

	item := resp.Items[0]
	rec := retrieval.Record{retrieval.FieldVideoID: item.Id}
	if sn := item.Snippet; sn != nil {
		rec["title"] = sn.Title
		rec["description"] = sn.Description
		rec["published_at"] = sn.PublishedAt
		rec["channel_id"] = sn.ChannelId
		rec["channel_title"] = sn.ChannelTitle
		rec["tags"] = sn.Tags
		rec["category_id"] = sn.CategoryId
		rec["thumbnail_url"] = thumbnail(sn.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil {
		rec["duration"] = cd.Duration
	}
	if st := item.Statistics; st != nil {
		rec["view_count"] = st.ViewCount
		rec["like_count"] = st.LikeCount
		rec["comment_count"] = st.CommentCount
	}
	return []retrieval.Record{rec}, nil
}

func (s *StructuredSource) channelVideos(ctx context.Context, channelID string, limit int) ([]retrieval.Record, error) {
	resp, err := s.service.Channels.List([]string{"contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	s.track(listQuotaCost)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		return nil, retrieval.NotFound(StructuredSourceName, fmt.Errorf("channel %s: %w", channelID, errEmptyResponse))
	}

	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	records, err := s.playlistVideos(ctx, uploads, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		r["channel_id"] = channelID
	}
	return records, nil
}

func (s *StructuredSource) playlistVideos(ctx context.Context, playlistID string, limit int) ([]retrieval.Record, error) {
	var records []retrieval.Record
	pageToken := ""

	for len(records) < limit {
		resp, err := s.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(min(apiPageSize, limit-len(records)))).
			PageToken(pageToken).
			Context(ctx).
			Do()
		s.track(listQuotaCost)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if item.ContentDetails == nil {
				continue
			}
			rec := retrieval.Record{
				retrieval.FieldVideoID: item.ContentDetails.VideoId,
				"playlist_id":          playlistID,
			}
			if sn := item.Snippet; sn != nil {
				rec["title"] = sn.Title
				rec["description"] = sn.Description
				rec["published_at"] = sn.PublishedAt
				rec["channel_id"] = sn.ChannelId
				rec["channel_title"] = sn.ChannelTitle
				rec["position"] = sn.Position
				rec["thumbnail_url"] = thumbnail(sn.Thumbnails)
			}
			records = append(records, rec)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}
	return truncate(records, limit), nil
}

func (s *StructuredSource) search(ctx context.Context, query string, limit int) ([]retrieval.Record, error) {
	var records []retrieval.Record
	pageToken := ""

	for len(records) < limit {
		resp, err := s.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("video").
			MaxResults(int64(min(apiPageSize, limit-len(records)))).
			PageToken(pageToken).
			Context(ctx).
			Do()
		s.track(searchQuotaCost)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" {
				continue
			}
			rec := retrieval.Record{
				retrieval.FieldVideoID: item.Id.VideoId,
				"query":                query,
			}
			if sn := item.Snippet; sn != nil {
				rec["title"] = sn.Title
				rec["description"] = sn.Description
				rec["published_at"] = sn.PublishedAt
				rec["channel_id"] = sn.ChannelId
				rec["channel_title"] = sn.ChannelTitle
				rec["thumbnail_url"] = thumbnail(sn.Thumbnails)
			}
			records = append(records, rec)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}
	return truncate(records, limit), nil
}

func (s *StructuredSource) comments(ctx context.Context, videoID string, limit int) ([]retrieval.Record, error) {
	var records []retrieval.Record
	pageToken := ""

	for len(records) < limit {
		resp, err := s.service.CommentThreads.List([]string{"snippet"}).
			VideoId(videoID).
			MaxResults(int64(min(commentsPageSize, limit-len(records)))).
			TextFormat("plainText").
			PageToken(pageToken).
			Context(ctx).
			Do()
		s.track(listQuotaCost)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
				continue
			}
			c := item.Snippet.TopLevelComment.Snippet
			rec := retrieval.Record{
				"comment_id":           item.Id,
				retrieval.FieldVideoID: videoID,
				"text":                 c.TextDisplay,
				"author":               c.AuthorDisplayName,
				"like_count":           c.LikeCount,
				"published_at":         c.PublishedAt,
				"updated_at":           c.UpdatedAt,
			}
			if c.AuthorChannelId != nil {
				rec["author_channel_id"] = c.AuthorChannelId.Value
			}
			records = append(records, rec)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}
	return truncate(records, limit), nil
}

// classify maps API errors onto the retrieval taxonomy. Missing resources and
// disabled comments are permanent; quota, rate limits, auth problems and
// transport failures are transient from the job's point of view.
func classify(err error) error {
	var srcErr *retrieval.SourceError
	if errors.As(err, &srcErr) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return retrieval.NotFound(StructuredSourceName, err)
		case apiErr.Code == 403 && hasReason(apiErr, "commentsDisabled", "forbidden"):
			return retrieval.NotFound(StructuredSourceName, err)
		}
	}
	return retrieval.Unavailable(StructuredSourceName, err)
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}

func thumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func truncate(records []retrieval.Record, limit int) []retrieval.Record {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
