package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	EndpointAdAccounts   = "adaccounts"
	EndpointCampaigns    = "campaigns"
	EndpointInsights     = "insights"
	EndpointDemographics = "demographics"
)

const (
	DefaultAccountFields  = "id,name,currency,timezone_name,account_status"
	DefaultCampaignFields = "id,name,status"

	insightsFields = "ad_id,ad_name,campaign_name,campaign_id,adset_name,adset_id," +
		"impressions,spend,clicks,unique_outbound_clicks,reach,frequency," +
		"cpm,ctr,actions,action_values,conversions,conversion_values,created_time"

	demographicsFields = "impressions,spend,clicks,actions,action_values"
)

const (
	DefaultAccountPageLimit      = 100
	DefaultCampaignLimit         = 25
	DefaultInsightsPageLimit     = 500
	DefaultDemographicsPageLimit = 500
)

// GetAdAccounts lists every ad account the token can see.
func (c *Client) GetAdAccounts(ctx context.Context, accessToken string) ([]map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	query := url.Values{
		"access_token": {accessToken},
		"fields":       {DefaultAccountFields},
		"limit":        {strconv.Itoa(DefaultAccountPageLimit)},
	}
	return c.paginate(ctx, EndpointAdAccounts, c.endpointURL("me/adaccounts"), query, "", MaxAccountPages)
}

// GetCampaigns returns the first page of campaigns for an account.
func (c *Client) GetCampaigns(ctx context.Context, accountID, accessToken string) ([]map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	query := url.Values{
		"access_token": {accessToken},
		"fields":       {DefaultCampaignFields},
		"limit":        {strconv.Itoa(DefaultCampaignLimit)},
	}
	var p page
	err := c.do(ctx, call{
		endpoint: EndpointCampaigns,
		method:   http.MethodGet,
		url:      c.endpointURL(accountID + "/campaigns"),
		query:    query,
		resource: accountID,
	}, &p)
	if err != nil {
		return nil, err
	}
	return p.Data, nil
}

// GetInsightsDaily returns one row per ad per day between since and until
// (YYYY-MM-DD, inclusive).
func (c *Client) GetInsightsDaily(ctx context.Context, accountID, accessToken, since, until string, limit int) ([]map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	if limit <= 0 {
		limit = DefaultInsightsPageLimit
	}
	query := url.Values{
		"access_token":                    {accessToken},
		"level":                           {"ad"},
		"time_range":                      {timeRange(since, until)},
		"time_increment":                  {"1"},
		"fields":                          {insightsFields},
		"limit":                           {strconv.Itoa(limit)},
		"action_report_time":              {"conversion"},
		"use_unified_attribution_setting": {"true"},
	}
	return c.paginate(ctx, EndpointInsights, c.endpointURL(accountID+"/insights"), query, accountID, MaxInsightsPages)
}

// GetDemographics returns account-level rows broken down by age and gender.
func (c *Client) GetDemographics(ctx context.Context, accountID, accessToken, since, until string) ([]map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	query := url.Values{
		"access_token":                    {accessToken},
		"level":                           {"account"},
		"time_range":                      {timeRange(since, until)},
		"breakdowns":                      {"age,gender"},
		"fields":                          {demographicsFields},
		"limit":                           {strconv.Itoa(DefaultDemographicsPageLimit)},
		"action_report_time":              {"conversion"},
		"use_unified_attribution_setting": {"true"},
	}
	return c.paginate(ctx, EndpointDemographics, c.endpointURL(accountID+"/insights"), query, accountID, MaxDemographicsPages)
}

func timeRange(since, until string) string {
	raw, _ := json.Marshal(map[string]string{"since": since, "until": until})
	return string(raw)
}
