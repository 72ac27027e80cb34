package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/campaignlens/backend/internal/application/analysis"
	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/application/enrichment"
	"github.com/campaignlens/backend/internal/application/insight"
	"github.com/campaignlens/backend/internal/application/reconciliation"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/linkedin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// serve registers h on route and performs one request against it.
func serve(t *testing.T, method, route, target string, body any, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	r := gin.New()
	r.Handle(method, route, h)
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// MockPostAnalyzer implements PostAnalyzer for testing
type MockPostAnalyzer struct {
	mock.Mock
}

func (m *MockPostAnalyzer) AnalyzePost(ctx context.Context, rawURL string, opts analysis.Options) (*analysis.Response, error) {
	args := m.Called(ctx, rawURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.Response), args.Error(1)
}

func (m *MockPostAnalyzer) Status(ctx context.Context, analysisID string) (*analysis.ProcessingStatus, error) {
	args := m.Called(ctx, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.ProcessingStatus), args.Error(1)
}

func (m *MockPostAnalyzer) Register(ctx context.Context, analysisID, rawURL string) error {
	args := m.Called(ctx, analysisID, rawURL)
	return args.Error(0)
}

// MockPostRepository implements analytics.PostRepository for testing
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) FindByID(ctx context.Context, id uuid.UUID) (*analytics.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Post), args.Error(1)
}

func (m *MockPostRepository) FindByURL(ctx context.Context, url string) (*analytics.Post, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Post), args.Error(1)
}

func (m *MockPostRepository) Upsert(ctx context.Context, post *analytics.Post) error {
	return m.Called(ctx, post).Error(0)
}

func (m *MockPostRepository) SetPrimaryCampaign(ctx context.Context, postID uuid.UUID, campaignID string) error {
	return m.Called(ctx, postID, campaignID).Error(0)
}

func (m *MockPostRepository) ListIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockCampaignRepository implements analytics.CampaignRepository for testing
type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) FindByID(ctx context.Context, id string) (*analytics.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) FindByIDs(ctx context.Context, ids []string) ([]analytics.Campaign, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) ListByAccount(ctx context.Context, accountID string) ([]analytics.Campaign, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) Upsert(ctx context.Context, campaigns ...*analytics.Campaign) error {
	return m.Called(ctx, campaigns).Error(0)
}

func (m *MockCampaignRepository) UpsertCreatives(ctx context.Context, creatives ...analytics.Creative) error {
	return m.Called(ctx, creatives).Error(0)
}

func (m *MockCampaignRepository) FindCreatives(ctx context.Context, campaignID string) ([]analytics.Creative, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Creative), args.Error(1)
}

func (m *MockCampaignRepository) FindCreativesReferencing(ctx context.Context, postID string) ([]analytics.Creative, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Creative), args.Error(1)
}

// MockCampaignMatcher implements CampaignMatcher for testing
type MockCampaignMatcher struct {
	mock.Mock
}

func (m *MockCampaignMatcher) FindBestMatch(ctx context.Context, post *analytics.Post, campaigns []analytics.Campaign) (*analytics.MatchResult, error) {
	args := m.Called(ctx, post, campaigns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.MatchResult), args.Error(1)
}

// MockCorrelationLinker implements CorrelationLinker for testing
type MockCorrelationLinker struct {
	mock.Mock
}

func (m *MockCorrelationLinker) LinkCorrelation(ctx context.Context, post *analytics.Post, match *analytics.MatchResult) error {
	return m.Called(ctx, post, match).Error(0)
}

// MockCampaignLister implements CampaignLister for testing
type MockCampaignLister struct {
	mock.Mock
}

func (m *MockCampaignLister) GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Campaign), args.Error(1)
}

// MockEngagementValidator implements EngagementValidator for testing. The
// options slice is passed to Called as one argument.
type MockEngagementValidator struct {
	mock.Mock
}

func (m *MockEngagementValidator) ValidatePostEngagements(ctx context.Context, postID uuid.UUID, opts ...reconciliation.ValidateOption) (*reconciliation.Report, error) {
	args := m.Called(ctx, postID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Report), args.Error(1)
}

func (m *MockEngagementValidator) ValidateBatch(ctx context.Context, postIDs []uuid.UUID, opts ...reconciliation.ValidateOption) *reconciliation.BatchReport {
	args := m.Called(ctx, postIDs, opts)
	return args.Get(0).(*reconciliation.BatchReport)
}

// MockRunReader implements RunReader for testing
type MockRunReader struct {
	mock.Mock
}

func (m *MockRunReader) LatestRun(ctx context.Context, postURL string) (*analytics.ScraperRun, error) {
	args := m.Called(ctx, postURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.ScraperRun), args.Error(1)
}

func (m *MockRunReader) FetchDataset(ctx context.Context, datasetID string) ([]analytics.ScrapedReaction, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.ScrapedReaction), args.Error(1)
}

// MockPostCampaignLinker implements PostCampaignLinker for testing
type MockPostCampaignLinker struct {
	mock.Mock
}

func (m *MockPostCampaignLinker) LinkPostToCampaigns(ctx context.Context, postID uuid.UUID, campaignIDs []string, assoc analytics.AssociationType) (int, error) {
	args := m.Called(ctx, postID, campaignIDs, assoc)
	return args.Int(0), args.Error(1)
}

func (m *MockPostCampaignLinker) Unlink(ctx context.Context, postID uuid.UUID, campaignID string) error {
	return m.Called(ctx, postID, campaignID).Error(0)
}

func (m *MockPostCampaignLinker) GetPostCampaigns(ctx context.Context, postID uuid.UUID) ([]campaign.LinkedCampaign, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]campaign.LinkedCampaign), args.Error(1)
}

func (m *MockPostCampaignLinker) GetCampaignPosts(ctx context.Context, campaignID string) ([]campaign.LinkedPost, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]campaign.LinkedPost), args.Error(1)
}

func (m *MockPostCampaignLinker) SearchCampaignsByPostURL(ctx context.Context, accountID, postURL string) ([]campaign.CampaignMatch, error) {
	args := m.Called(ctx, accountID, postURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]campaign.CampaignMatch), args.Error(1)
}

// MockCampaignSyncer implements CampaignSyncer for testing
type MockCampaignSyncer struct {
	mock.Mock
}

func (m *MockCampaignSyncer) SyncCampaignPosts(ctx context.Context, c *analytics.Campaign) (*campaign.SyncResult, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.SyncResult), args.Error(1)
}

// MockAudienceResolver implements AudienceResolver for testing
type MockAudienceResolver struct {
	mock.Mock
}

func (m *MockAudienceResolver) CampaignTargeting(ctx context.Context, campaignID string) (*campaign.Audience, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Audience), args.Error(1)
}

// MockDemographicsAggregator implements DemographicsAggregator for testing
type MockDemographicsAggregator struct {
	mock.Mock
}

func (m *MockDemographicsAggregator) GetAggregatedDemographics(ctx context.Context, campaignIDs []string) (*campaign.Demographics, error) {
	args := m.Called(ctx, campaignIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*campaign.Demographics), args.Error(1)
}

// MockInsightSource implements InsightSource for testing
type MockInsightSource struct {
	mock.Mock
}

func (m *MockInsightSource) ForPost(ctx context.Context, postID uuid.UUID) (*insight.Report, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*insight.Report), args.Error(1)
}

// MockEnrichmentQueue implements EnrichmentQueue for testing
type MockEnrichmentQueue struct {
	mock.Mock
}

func (m *MockEnrichmentQueue) QueueForEnrichment(ctx context.Context, personIDs []uuid.UUID, priority int) (int, error) {
	args := m.Called(ctx, personIDs, priority)
	return args.Int(0), args.Error(1)
}

func (m *MockEnrichmentQueue) AutoQueueHighValuePeople(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockEnrichmentQueue) ProcessQueue(ctx context.Context) (*enrichment.ProcessResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrichment.ProcessResult), args.Error(1)
}

func (m *MockEnrichmentQueue) Stats(ctx context.Context) (*enrichment.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrichment.Stats), args.Error(1)
}

// MockLinkedInAPI implements LinkedInAPI for testing
type MockLinkedInAPI struct {
	mock.Mock
}

func (m *MockLinkedInAPI) GetAdAccounts(ctx context.Context) ([]linkedin.AdAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linkedin.AdAccount), args.Error(1)
}

func (m *MockLinkedInAPI) GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Campaign), args.Error(1)
}

func (m *MockLinkedInAPI) GetCampaignGroups(ctx context.Context, accountID string) ([]linkedin.CampaignGroup, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linkedin.CampaignGroup), args.Error(1)
}

func (m *MockLinkedInAPI) GetAudienceTemplates(ctx context.Context, accountID string) ([]linkedin.AudienceTemplate, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linkedin.AudienceTemplate), args.Error(1)
}

func (m *MockLinkedInAPI) GetTargetingFacets(ctx context.Context) ([]linkedin.TargetingFacet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linkedin.TargetingFacet), args.Error(1)
}

func (m *MockLinkedInAPI) SearchTargetingEntities(ctx context.Context, facetType, query string) ([]linkedin.TargetingEntity, error) {
	args := m.Called(ctx, facetType, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]linkedin.TargetingEntity), args.Error(1)
}

func (m *MockLinkedInAPI) Proxy(ctx context.Context, method, path string, query url.Values, body []byte) (*linkedin.ProxyResponse, error) {
	args := m.Called(ctx, method, path, query, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linkedin.ProxyResponse), args.Error(1)
}

func (m *MockLinkedInAPI) Health() linkedin.HealthStatus {
	return m.Called().Get(0).(linkedin.HealthStatus)
}
