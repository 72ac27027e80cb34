package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/shopspring/decimal"
)

var (
	_ analytics.AdPlatform        = (*Client)(nil)
	_ analytics.PerformanceSource = (*Client)(nil)
)

// AdAccount is a sponsored account the token can manage.
type AdAccount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

// CampaignGroup groups campaigns inside an account.
type CampaignGroup struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// AudienceTemplate is a saved targeting definition.
type AudienceTemplate struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Targeting   json.RawMessage `json:"targetingCriteria,omitempty"`
}

// TargetingFacet is one targeting dimension offered by the API.
type TargetingFacet struct {
	URN         string   `json:"adTargetingFacetUrn"`
	FacetName   string   `json:"facetName"`
	EntityTypes []string `json:"entityTypes,omitempty"`
}

// TargetingEntity is a value of a targeting facet.
type TargetingEntity struct {
	URN           string `json:"urn"`
	Name          string `json:"name"`
	LocalizedName string `json:"localizedName"`
	FacetURN      string `json:"facetUrn"`
}

// DisplayName prefers Name over LocalizedName.
func (e TargetingEntity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.LocalizedName
}

// DateRange bounds an analytics query. A zero End leaves the range open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// AnalyticsRow is one element of an adAnalytics response.
type AnalyticsRow struct {
	Pivot       string
	PivotValue  string
	Date        time.Time
	Impressions int64
	Clicks      int64
	Engagements int64
	Spend       decimal.Decimal
}

// Analytics pivots.
const (
	PivotCampaign  = "CAMPAIGN"
	PivotCompany   = "MEMBER_COMPANY"
	PivotJobTitle  = "MEMBER_JOB_TITLE"
	PivotSeniority = "MEMBER_SENIORITY"
	PivotIndustry  = "MEMBER_INDUSTRY"
)

type elements[T any] struct {
	Elements []T `json:"elements"`
	Paging   struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Total int `json:"total"`
	} `json:"paging"`
}

// flexID accepts numeric ids, string ids and URNs, keeping the trailing id.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = flexID(trailingID(s))
	return nil
}

func trailingID(urn string) string {
	if i := strings.LastIndex(urn, ":"); i >= 0 {
		return urn[i+1:]
	}
	return urn
}

// GetAdAccounts lists the accounts visible to the token.
func (c *Client) GetAdAccounts(ctx context.Context) ([]AdAccount, error) {
	var resp elements[struct {
		ID        flexID `json:"id"`
		Name      string `json:"name"`
		Status    string `json:"status"`
		Currency  string `json:"currency"`
		Reference string `json:"reference"`
	}]
	if err := c.getJSON(ctx, "get_ad_accounts", "/adAccounts", url.Values{"q": {"search"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]AdAccount, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		out = append(out, AdAccount{
			ID:        string(e.ID),
			Name:      e.Name,
			Status:    e.Status,
			Currency:  e.Currency,
			Reference: e.Reference,
		})
	}
	return out, nil
}

type apiMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func (m *apiMoney) decimal() decimal.Decimal {
	if m == nil || m.Amount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type apiSchedule struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type apiStamp struct {
	Time int64 `json:"time"`
}

type apiCampaign struct {
	ID               flexID          `json:"id"`
	Account          string          `json:"account"`
	CampaignGroup    string          `json:"campaignGroup"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	Type             string          `json:"type"`
	RunSchedule      *apiSchedule    `json:"runSchedule"`
	Targeting        json.RawMessage `json:"targetingCriteria"`
	DailyBudget      *apiMoney       `json:"dailyBudget"`
	TotalBudget      *apiMoney       `json:"totalBudget"`
	ChangeAuditStamp struct {
		Created      apiStamp `json:"created"`
		LastModified apiStamp `json:"lastModified"`
	} `json:"changeAuditStamps"`
}

func (a apiCampaign) toDomain(accountID string) (analytics.Campaign, error) {
	tc, err := analytics.ParseTargetingCriteria(a.Targeting)
	if err != nil {
		return analytics.Campaign{}, fmt.Errorf("campaign %s: %w", a.ID, err)
	}
	camp := analytics.Campaign{
		ID:              string(a.ID),
		AccountID:       accountID,
		CampaignGroupID: trailingID(a.CampaignGroup),
		Name:            a.Name,
		Description:     a.Description,
		Status:          a.Status,
		Type:            a.Type,
		Targeting:       tc,
		DailyBudget:     a.DailyBudget.decimal(),
		TotalBudget:     a.TotalBudget.decimal(),
		CreatedAt:       millis(a.ChangeAuditStamp.Created.Time),
		UpdatedAt:       millis(a.ChangeAuditStamp.LastModified.Time),
	}
	if a.Account != "" {
		camp.AccountID = trailingID(a.Account)
	}
	if a.RunSchedule != nil && a.RunSchedule.Start > 0 {
		sched := &analytics.RunSchedule{Start: millis(a.RunSchedule.Start)}
		if a.RunSchedule.End > 0 {
			end := millis(a.RunSchedule.End)
			sched.End = &end
		}
		camp.Schedule = sched
	}
	return camp, nil
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// GetCampaigns lists an account's campaigns. Campaigns whose targeting
// cannot be decoded are returned without targeting.
func (c *Client) GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error) {
	var resp elements[apiCampaign]
	path := fmt.Sprintf("/adAccounts/%s/adCampaigns", url.PathEscape(accountID))
	if err := c.getJSON(ctx, "get_campaigns", path, url.Values{"q": {"search"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]analytics.Campaign, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		camp, err := e.toDomain(accountID)
		if err != nil {
			c.logger.Sugar().Warnw("Dropping malformed targeting", "campaign_id", string(e.ID), "error", err)
			e.Targeting = nil
			camp, _ = e.toDomain(accountID)
		}
		out = append(out, camp)
	}
	return out, nil
}

// GetCampaignGroups lists an account's campaign groups.
func (c *Client) GetCampaignGroups(ctx context.Context, accountID string) ([]CampaignGroup, error) {
	var resp elements[struct {
		ID     flexID `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}]
	path := fmt.Sprintf("/adAccounts/%s/adCampaignGroups", url.PathEscape(accountID))
	if err := c.getJSON(ctx, "get_campaign_groups", path, url.Values{"q": {"search"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]CampaignGroup, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		out = append(out, CampaignGroup{ID: string(e.ID), Name: e.Name, Status: e.Status})
	}
	return out, nil
}

type apiCreative struct {
	ID               flexID `json:"id"`
	Campaign         string `json:"campaign"`
	Type             string `json:"type"`
	Status           string `json:"status"`
	IntendedStatus   string `json:"intendedStatus"`
	Reference        string `json:"reference"`
	UGCPostReference string `json:"ugcPostReference"`
	Content          *struct {
		Reference string `json:"reference"`
	} `json:"content"`
	Variables *struct {
		Data struct {
			ShareURL string `json:"shareUrl"`
			Text     *struct {
				Text string `json:"text"`
			} `json:"text"`
			Content *struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"content"`
		} `json:"data"`
	} `json:"variables"`
}

func (a apiCreative) toDomain(campaignID string) analytics.Creative {
	cr := analytics.Creative{
		ID:               string(a.ID),
		CampaignID:       campaignID,
		Type:             a.Type,
		Status:           a.Status,
		Reference:        a.Reference,
		UGCPostReference: a.UGCPostReference,
	}
	if cr.Status == "" {
		cr.Status = a.IntendedStatus
	}
	if a.Campaign != "" {
		cr.CampaignID = trailingID(a.Campaign)
	}
	if cr.Reference == "" && a.Content != nil {
		cr.Reference = a.Content.Reference
	}
	if a.Variables != nil {
		d := a.Variables.Data
		cr.ShareURL = d.ShareURL
		if d.Text != nil {
			cr.Text = d.Text.Text
		}
		if d.Content != nil {
			cr.Title = d.Content.Title
		}
	}
	return cr
}

// GetCampaignCreatives lists a campaign's creatives. An empty slice means the
// campaign has none.
func (c *Client) GetCampaignCreatives(ctx context.Context, campaignID string) ([]analytics.Creative, error) {
	var resp elements[apiCreative]
	q := url.Values{
		"q":         {"criteria"},
		"campaigns": {fmt.Sprintf("List(urn:li:sponsoredCampaign:%s)", campaignID)},
	}
	if err := c.getJSON(ctx, "get_campaign_creatives", "/creatives", q, &resp); err != nil {
		return nil, err
	}
	out := make([]analytics.Creative, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		out = append(out, e.toDomain(campaignID))
	}
	return out, nil
}

type apiPost struct {
	ID         string `json:"id"`
	Commentary string `json:"commentary"`
	CreatedAt  int64  `json:"createdAt"`
	Content    *struct {
		Article *struct {
			Title string `json:"title"`
		} `json:"article"`
	} `json:"content"`
}

// GetOrganizationShares pages through an organization's organic posts.
func (c *Client) GetOrganizationShares(ctx context.Context, orgID string, start, count int) ([]analytics.Share, error) {
	if count <= 0 {
		count = 50
	}
	q := url.Values{
		"q":      {"author"},
		"author": {"urn:li:organization:" + orgID},
		"start":  {strconv.Itoa(max(start, 0))},
		"count":  {strconv.Itoa(count)},
	}
	var resp elements[apiPost]
	if err := c.getJSON(ctx, "get_organization_shares", "/posts", q, &resp); err != nil {
		return nil, err
	}
	out := make([]analytics.Share, 0, len(resp.Elements))
	for _, p := range resp.Elements {
		s := analytics.Share{
			ID:          trailingID(p.ID),
			ActivityURN: p.ID,
			Text:        p.Commentary,
			CreatedAt:   millis(p.CreatedAt),
		}
		if p.Content != nil && p.Content.Article != nil {
			s.Title = p.Content.Article.Title
		}
		out = append(out, s)
	}
	return out, nil
}

type apiDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d apiDate) time() time.Time {
	if d.Year == 0 {
		return time.Time{}
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func formatDateRange(r DateRange) string {
	start := fmt.Sprintf("(start:(year:%d,month:%d,day:%d)", r.Start.Year(), int(r.Start.Month()), r.Start.Day())
	if r.End.IsZero() {
		return start + ")"
	}
	return start + fmt.Sprintf(",end:(year:%d,month:%d,day:%d))", r.End.Year(), int(r.End.Month()), r.End.Day())
}

// GetCampaignAnalytics fetches analytics rows for campaigns, optionally
// pivoted. A zero dateRange.Start queries all time.
func (c *Client) GetCampaignAnalytics(ctx context.Context, campaignIDs []string, pivot string, dateRange DateRange) ([]AnalyticsRow, error) {
	return c.analyticsRows(ctx, campaignIDs, pivot, granularityAll, dateRange)
}

const (
	granularityAll   = "ALL"
	granularityDaily = "DAILY"
)

// demographicPivots are the member pivots stored per campaign.
var demographicPivots = []string{PivotCompany, PivotJobTitle, PivotSeniority, PivotIndustry}

// GetCampaignPerformance returns one reporting row per campaign and day
// since the given day.
func (c *Client) GetCampaignPerformance(ctx context.Context, campaignIDs []string, since time.Time) ([]analytics.CampaignAnalytics, error) {
	rows, err := c.analyticsRows(ctx, campaignIDs, PivotCampaign, granularityDaily, DateRange{Start: since})
	if err != nil {
		return nil, err
	}
	return CampaignAnalytics(rows), nil
}

// GetCampaignDemographics returns the all-time audience breakdown of a
// campaign for every member pivot.
func (c *Client) GetCampaignDemographics(ctx context.Context, campaignID string) ([]analytics.DemographicRow, error) {
	var out []analytics.DemographicRow
	for _, pivot := range demographicPivots {
		rows, err := c.analyticsRows(ctx, []string{campaignID}, pivot, granularityAll, DateRange{})
		if err != nil {
			return nil, fmt.Errorf("%s breakdown: %w", pivot, err)
		}
		out = append(out, DemographicRows(campaignID, rows)...)
	}
	return out, nil
}

func (c *Client) analyticsRows(ctx context.Context, campaignIDs []string, pivot, granularity string, dateRange DateRange) ([]AnalyticsRow, error) {
	if len(campaignIDs) == 0 {
		return []AnalyticsRow{}, nil
	}
	urns := make([]string, len(campaignIDs))
	for i, id := range campaignIDs {
		urns[i] = "urn:li:sponsoredCampaign:" + id
	}
	if pivot == "" {
		pivot = PivotCampaign
	}
	q := url.Values{
		"q":               {"analytics"},
		"pivot":           {pivot},
		"campaigns":       {"List(" + strings.Join(urns, ",") + ")"},
		"timeGranularity": {granularity},
		"fields":          {"pivotValues,dateRange,impressions,clicks,totalEngagements,costInUsd"},
	}
	if !dateRange.Start.IsZero() {
		q.Set("dateRange", formatDateRange(dateRange))
	}

	var resp elements[struct {
		PivotValues []string `json:"pivotValues"`
		DateRange   struct {
			Start apiDate `json:"start"`
		} `json:"dateRange"`
		Impressions      int64  `json:"impressions"`
		Clicks           int64  `json:"clicks"`
		TotalEngagements int64  `json:"totalEngagements"`
		CostInUsd        string `json:"costInUsd"`
	}]
	if err := c.getJSON(ctx, "get_campaign_analytics", "/adAnalytics", q, &resp); err != nil {
		return nil, err
	}
	out := make([]AnalyticsRow, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		row := AnalyticsRow{
			Pivot:       pivot,
			Date:        e.DateRange.Start.time(),
			Impressions: e.Impressions,
			Clicks:      e.Clicks,
			Engagements: e.TotalEngagements,
			Spend:       decimal.Zero,
		}
		if len(e.PivotValues) > 0 {
			row.PivotValue = e.PivotValues[0]
		}
		if e.CostInUsd != "" {
			if d, err := decimal.NewFromString(e.CostInUsd); err == nil {
				row.Spend = d
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// CampaignAnalytics converts CAMPAIGN-pivoted rows into domain analytics.
func CampaignAnalytics(rows []AnalyticsRow) []analytics.CampaignAnalytics {
	out := make([]analytics.CampaignAnalytics, 0, len(rows))
	for _, r := range rows {
		out = append(out, analytics.CampaignAnalytics{
			CampaignID:  trailingID(r.PivotValue),
			Date:        r.Date,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Engagements: r.Engagements,
			Spend:       r.Spend,
		})
	}
	return out
}

// DemographicRows converts member-pivoted rows into demographic rows.
func DemographicRows(campaignID string, rows []AnalyticsRow) []analytics.DemographicRow {
	out := make([]analytics.DemographicRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, analytics.DemographicRow{
			CampaignID:  campaignID,
			PivotType:   strings.TrimPrefix(r.Pivot, "MEMBER_"),
			PivotValue:  r.PivotValue,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Engagements: r.Engagements,
			Spend:       r.Spend,
		})
	}
	return out
}

// GetAudienceTemplates lists saved audiences of an account.
func (c *Client) GetAudienceTemplates(ctx context.Context, accountID string) ([]AudienceTemplate, error) {
	var resp elements[struct {
		ID          flexID          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Targeting   json.RawMessage `json:"targetingCriteria"`
	}]
	path := fmt.Sprintf("/adAccounts/%s/audienceTemplates", url.PathEscape(accountID))
	if err := c.getJSON(ctx, "get_audience_templates", path, url.Values{"q": {"search"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]AudienceTemplate, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		out = append(out, AudienceTemplate{ID: string(e.ID), Name: e.Name, Description: e.Description, Targeting: e.Targeting})
	}
	return out, nil
}

// GetTargetingFacets lists the available targeting facets.
func (c *Client) GetTargetingFacets(ctx context.Context) ([]TargetingFacet, error) {
	var resp elements[TargetingFacet]
	if err := c.getJSON(ctx, "get_targeting_facets", "/adTargetingFacets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Elements, nil
}

// SearchTargetingEntities finds entities of facetType matching query.
func (c *Client) SearchTargetingEntities(ctx context.Context, facetType, query string) ([]TargetingEntity, error) {
	q := url.Values{}
	if facetType != "" {
		q.Set("facetType", facetType)
	}
	if query != "" {
		q.Set("q", query)
	}
	var resp elements[TargetingEntity]
	if err := c.getJSON(ctx, "search_targeting_entities", "/adTargetingEntities", q, &resp); err != nil {
		return nil, err
	}
	return resp.Elements, nil
}

// LookupEntityName returns the name of the first entity matching id, or ""
// when none does.
func (c *Client) LookupEntityName(ctx context.Context, facetType, id string) (string, error) {
	entities, err := c.SearchTargetingEntities(ctx, facetType, id)
	if err != nil {
		return "", err
	}
	for _, e := range entities {
		if name := e.DisplayName(); name != "" {
			return name, nil
		}
	}
	return "", nil
}

// ProxyResponse is the raw upstream answer to a proxied call.
type ProxyResponse struct {
	Body []byte
}

// Proxy forwards an arbitrary call. GET responses are cached like every other
// read.
func (c *Client) Proxy(ctx context.Context, method, path string, query url.Values, body []byte) (*ProxyResponse, error) {
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	data, err := c.request(ctx, "proxy", strings.ToUpper(method), path, query, body)
	if err != nil {
		return nil, err
	}
	return &ProxyResponse{Body: data}, nil
}
