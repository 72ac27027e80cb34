package analytics

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Post is a LinkedIn post whose identity is its canonical URL.
type Post struct {
	ID                uuid.UUID
	URL               string
	Title             string
	Content           string
	Description       string
	ImageURL          string
	AuthorName        string
	PostedAt          *time.Time
	PrimaryCampaignID string
	CampaignSpend     decimal.Decimal
	TotalEngagements  int
	IsOrganic         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPost creates a post keyed by the canonical form of rawURL.
func NewPost(rawURL string) *Post {
	now := time.Now()
	return &Post{
		ID:        uuid.New(),
		URL:       CanonicalPostURL(rawURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PublishedAt returns the posted timestamp, falling back to creation time.
// It returns nil when neither is known.
func (p *Post) PublishedAt() *time.Time {
	if p.PostedAt != nil {
		return p.PostedAt
	}
	if !p.CreatedAt.IsZero() {
		t := p.CreatedAt
		return &t
	}
	return nil
}

// HasPrimaryCampaign reports whether a primary campaign is linked.
func (p *Post) HasPrimaryCampaign() bool {
	return p.PrimaryCampaignID != ""
}

// URLType classifies the shape of a post URL.
type URLType string

const (
	URLTypeActivity URLType = "activity"
	URLTypeUGCPost  URLType = "ugc_post"
	URLTypeShare    URLType = "share"
	URLTypeUnknown  URLType = "unknown"
)

// PostMetadata is what can be learned about a post from its URL alone.
type PostMetadata struct {
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	PostID       string    `json:"post_id"`
	ActivityID   string    `json:"activity_id"`
	AuthorHandle string    `json:"author_handle,omitempty"`
	URLType      URLType   `json:"url_type"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

var (
	profilePostPattern = regexp.MustCompile(`posts/[^/]+/(?:.+)-activity-(\d+)`)
	authorPattern      = regexp.MustCompile(`posts/([^/]+)/`)

	// Recognized post URL shapes, tried in order.
	metadataPatterns = []*regexp.Regexp{
		regexp.MustCompile(`activity[-:](\d+)`),
		regexp.MustCompile(`ugcPost:(\d+)`),
		regexp.MustCompile(`share:(\d+)`),
		profilePostPattern,
	}

	// Numeric post id patterns used when comparing creative references.
	postIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`activity-(\d+)`),
		regexp.MustCompile(`ugcPost:(\d+)`),
		regexp.MustCompile(`share:(\d+)`),
		regexp.MustCompile(`urn:li:activity:(\d+)`),
	}
)

// ExtractPostMetadata parses a post URL. It fails with ErrInputMalformed when
// the URL matches none of the known identifier shapes.
func ExtractPostMetadata(rawURL string) (*PostMetadata, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, ErrInputMalformed.WithMessage("post url is required")
	}

	var id string
	for _, pattern := range metadataPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			id = m[1]
			break
		}
	}
	if id == "" {
		return nil, ErrInputMalformed.WithMessage("cannot extract post id from url: " + url)
	}

	md := &PostMetadata{
		URL:          url,
		CanonicalURL: CanonicalPostURL(url),
		PostID:       id,
		ActivityID:   id,
		URLType:      DetermineURLType(url),
		ExtractedAt:  time.Now(),
	}
	if m := authorPattern.FindStringSubmatch(url); m != nil {
		md.AuthorHandle = m[1]
	}
	return md, nil
}

// DetermineURLType classifies a post URL by the identifier kind it carries.
func DetermineURLType(url string) URLType {
	switch {
	case strings.Contains(url, "activity"):
		return URLTypeActivity
	case strings.Contains(url, "ugcPost"):
		return URLTypeUGCPost
	case strings.Contains(url, "share"):
		return URLTypeShare
	default:
		return URLTypeUnknown
	}
}

// ExtractPostID returns the numeric post id embedded in a URL or URN, or "".
func ExtractPostID(url string) string {
	if url == "" {
		return ""
	}
	for _, pattern := range postIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// URLsMatch reports whether two post references point at the same post,
// either by string equality or by equal extracted post ids.
func URLsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	idA, idB := ExtractPostID(a), ExtractPostID(b)
	return idA != "" && idA == idB
}

// FeedUpdateURL builds the public feed URL for a post URN.
func FeedUpdateURL(urn string) string {
	return "https://www.linkedin.com/feed/update/" + urn
}

var (
	ugcPostIDPattern  = regexp.MustCompile(`ugcPost:(\d+)`)
	shareIDPattern    = regexp.MustCompile(`share:(\d+)`)
	activityIDPattern = regexp.MustCompile(`activity[-:](\d+)`)
)

// CanonicalPostURL normalizes the equivalent URL and URN forms of a post to a
// single feed-update URL. URLs without a recognizable id are returned trimmed
// of query string and fragment.
func CanonicalPostURL(rawURL string) string {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return ""
	}
	if m := ugcPostIDPattern.FindStringSubmatch(url); m != nil {
		return FeedUpdateURL("urn:li:ugcPost:" + m[1])
	}
	if m := shareIDPattern.FindStringSubmatch(url); m != nil {
		return FeedUpdateURL("urn:li:share:" + m[1])
	}
	if m := activityIDPattern.FindStringSubmatch(url); m != nil {
		return FeedUpdateURL("urn:li:activity:" + m[1])
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.TrimSuffix(url, "/")
}
