package youtube

import (
	"fmt"
	"strings"

	"github.com/wasilibs/go-re2"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

var (
	videoURLPattern    = re2.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
	channelURLPattern  = re2.MustCompile(`youtube\.com/channel/(UC[A-Za-z0-9_-]{22})`)
	playlistURLPattern = re2.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)

	videoIDPattern    = re2.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	channelIDPattern  = re2.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
	playlistIDPattern = re2.MustCompile(`^[A-Za-z0-9_-]{2,64}$`)
)

// NormalizeTarget accepts either a bare id or a full YouTube URL and returns
// the id. Search queries are only trimmed.
func NormalizeTarget(target retrieval.Target, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("empty %s target", target)
	}

	switch target {
	case retrieval.TargetSearch:
		return v, nil
	case retrieval.TargetVideo, retrieval.TargetComments:
		return extract(v, videoURLPattern, videoIDPattern, "video")
	case retrieval.TargetChannel:
		return extract(v, channelURLPattern, channelIDPattern, "channel")
	case retrieval.TargetPlaylist:
		return extract(v, playlistURLPattern, playlistIDPattern, "playlist")
	default:
		return "", fmt.Errorf("unknown target %q", target)
	}
}

func extract(v string, fromURL, bare *re2.Regexp, what string) (string, error) {
	if m := fromURL.FindStringSubmatch(v); len(m) == 2 {
		return m[1], nil
	}
	if bare.MatchString(v) {
		return v, nil
	}
	return "", fmt.Errorf("cannot extract %s id from %q", what, v)
}
