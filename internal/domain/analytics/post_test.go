package analytics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPostMetadata(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		postID  string
		urlType URLType
		author  string
	}{
		{
			name:    "profile post url",
			url:     "https://www.linkedin.com/posts/jane-doe_growth-marketing-activity-7123456789012345678-AbCd",
			postID:  "7123456789012345678",
			urlType: URLTypeActivity,
		},
		{
			name:    "feed activity urn",
			url:     "https://www.linkedin.com/feed/update/urn:li:activity:7000000000000000001/",
			postID:  "7000000000000000001",
			urlType: URLTypeActivity,
		},
		{
			name:    "ugc post urn",
			url:     "https://www.linkedin.com/feed/update/urn:li:ugcPost:6900000000000000002",
			postID:  "6900000000000000002",
			urlType: URLTypeUGCPost,
		},
		{
			name:    "share urn",
			url:     "urn:li:share:6800000000000000003",
			postID:  "6800000000000000003",
			urlType: URLTypeShare,
		},
		{
			name:    "author handle from composite url",
			url:     "https://www.linkedin.com/posts/acme/launch-day-activity-42-xyz",
			postID:  "42",
			urlType: URLTypeActivity,
			author:  "acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := ExtractPostMetadata(tt.url)

			require.NoError(t, err)
			assert.Equal(t, tt.postID, md.PostID)
			assert.Equal(t, tt.postID, md.ActivityID)
			assert.Equal(t, tt.urlType, md.URLType)
			assert.Equal(t, tt.author, md.AuthorHandle)
			assert.False(t, md.ExtractedAt.IsZero())
		})
	}
}

func TestExtractPostMetadata_Malformed(t *testing.T) {
	for _, url := range []string{"", "   ", "https://www.linkedin.com/in/jane-doe", "https://example.com/post/12"} {
		t.Run(url, func(t *testing.T) {
			md, err := ExtractPostMetadata(url)

			assert.Nil(t, md)
			assert.True(t, errors.Is(err, ErrInputMalformed))
		})
	}
}

func TestCanonicalPostURL(t *testing.T) {
	want := "https://www.linkedin.com/feed/update/urn:li:activity:7123"

	for _, in := range []string{
		"https://www.linkedin.com/posts/jane_topic-activity-7123-AbCd?utm_source=share",
		"https://www.linkedin.com/feed/update/urn:li:activity:7123/",
		"urn:li:activity:7123",
	} {
		assert.Equal(t, want, CanonicalPostURL(in), in)
	}

	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:ugcPost:9", CanonicalPostURL("urn:li:ugcPost:9"))
	assert.Equal(t, "https://example.com/a", CanonicalPostURL(" https://example.com/a/?x=1 "))
	assert.Equal(t, "", CanonicalPostURL(""))
}

func TestURLsMatch(t *testing.T) {
	assert.True(t, URLsMatch("https://x/y", "https://x/y"))
	assert.True(t, URLsMatch("https://www.linkedin.com/posts/a-activity-55-b", "urn:li:activity:55"))
	assert.True(t, URLsMatch("urn:li:share:77", "https://www.linkedin.com/feed/update/urn:li:share:77"))
	assert.False(t, URLsMatch("urn:li:share:77", "urn:li:share:78"))
	assert.False(t, URLsMatch("", "urn:li:share:78"))
	assert.False(t, URLsMatch("https://a", "https://b"))
}

func TestCreative_PostURL(t *testing.T) {
	tests := []struct {
		name     string
		creative Creative
		want     string
	}{
		{"article share url", Creative{Type: "ARTICLE", ShareURL: "https://lnkd.in/abc"}, "https://lnkd.in/abc"},
		{"share reference", Creative{Reference: "urn:li:share:123"}, "https://www.linkedin.com/feed/update/urn:li:share:123"},
		{"ugc post reference", Creative{UGCPostReference: "urn:li:ugcPost:456"}, "https://www.linkedin.com/feed/update/urn:li:ugcPost:456"},
		{"nothing usable", Creative{Reference: "urn:li:video:1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creative.PostURL())
		})
	}
}
