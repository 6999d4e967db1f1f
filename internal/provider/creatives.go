package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

const EndpointBatch = "batch"

const (
	// MaxBatchSize is the provider limit of sub-requests per batch call.
	MaxBatchSize = 50
	// MaxConcurrentBatches bounds in-flight batch calls during fan-out.
	MaxConcurrentBatches = 25
)

const (
	FormatVideo    = "VIDEO"
	FormatImage    = "IMAGE"
	FormatCarousel = "CAROUSEL"
	Unknown        = "UNKNOWN"
)

const creativeFields = "status,effective_status,created_time,creative{status,video_id,image_url,instagram_permalink_url,object_story_spec}"

// Creative is the secondary metadata attached to an ad.
type Creative struct {
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	Format          string `json:"format"`
	MediaURL        string `json:"media_url"`
	CreativeStatus  string `json:"creative_status"`
}

// Fields renders the creative as record fields.
func (c Creative) Fields() map[string]any {
	return map[string]any{
		"status":           c.Status,
		"effective_status": c.EffectiveStatus,
		"format":           c.Format,
		"media_url":        c.MediaURL,
		"creative_status":  c.CreativeStatus,
	}
}

// BatchReport describes a fan-out run. Failed batches are not errors for
// the caller; their ids are just missing from the result.
type BatchReport struct {
	Batches       int
	FailedBatches int
	MissingIDs    []string
	Errors        []error
}

type batchRequest struct {
	Method      string `json:"method"`
	RelativeURL string `json:"relative_url"`
}

type batchResponse struct {
	Code int    `json:"code"`
	Body string `json:"body"`
}

type adCreativePayload struct {
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	Creative        struct {
		Status                string          `json:"status"`
		VideoID               string          `json:"video_id"`
		ImageURL              string          `json:"image_url"`
		InstagramPermalinkURL string          `json:"instagram_permalink_url"`
		ObjectStorySpec       json.RawMessage `json:"object_story_spec"`
	} `json:"creative"`
}

// FetchCreativesBatch fetches creatives for at most MaxBatchSize ads in one
// batch call. Sub-responses that are not 200 are left out.
func (c *Client) FetchCreativesBatch(ctx context.Context, accessToken, resource string, adIDs []string) (map[string]Creative, error) {
	if len(adIDs) == 0 {
		return map[string]Creative{}, nil
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	if len(adIDs) > MaxBatchSize {
		adIDs = adIDs[:MaxBatchSize]
	}

	requests := make([]batchRequest, len(adIDs))
	for i, id := range adIDs {
		requests[i] = batchRequest{
			Method:      http.MethodGet,
			RelativeURL: fmt.Sprintf("%s?fields=%s", id, creativeFields),
		}
	}
	encoded, err := json.Marshal(requests)
	if err != nil {
		return nil, err
	}

	var responses []*batchResponse
	err = c.do(ctx, call{
		endpoint: EndpointBatch,
		method:   http.MethodPost,
		url:      c.apiRoot,
		form: url.Values{
			"access_token": {accessToken},
			"batch":        {string(encoded)},
		},
		resource: resource,
	}, &responses)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Creative, len(adIDs))
	for i, resp := range responses {
		if i >= len(adIDs) || resp == nil || resp.Code != http.StatusOK {
			continue
		}
		var payload adCreativePayload
		if err := json.Unmarshal([]byte(resp.Body), &payload); err != nil {
			continue
		}
		out[adIDs[i]] = creativeFromPayload(payload)
	}
	return out, nil
}

// FetchCreatives splits adIDs into batches and runs them concurrently. A
// failing batch never cancels its siblings.
func (c *Client) FetchCreatives(ctx context.Context, accessToken, resource string, adIDs []string) (map[string]Creative, BatchReport) {
	ids := uniqueIDs(adIDs)
	batches := chunkIDs(ids, MaxBatchSize)
	report := BatchReport{Batches: len(batches)}
	if len(batches) == 0 {
		return map[string]Creative{}, report
	}

	var (
		mu     sync.Mutex
		result = make(map[string]Creative, len(ids))
		g      errgroup.Group
	)
	g.SetLimit(MaxConcurrentBatches)
	for _, batch := range batches {
		g.Go(func() error {
			creatives, err := c.FetchCreativesBatch(ctx, accessToken, resource, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.FailedBatches++
				report.Errors = append(report.Errors, err)
				c.metrics.IncBatchFailure()
				c.log.Warn("creative batch failed",
					zap.String("resource", resource),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
				return nil
			}
			for id, creative := range creatives {
				result[id] = creative
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range ids {
		if _, ok := result[id]; !ok {
			report.MissingIDs = append(report.MissingIDs, id)
		}
	}
	return result, report
}

func creativeFromPayload(p adCreativePayload) Creative {
	out := Creative{
		Status:          orUnknown(p.Status),
		EffectiveStatus: orUnknown(p.EffectiveStatus),
		Format:          Unknown,
		CreativeStatus:  orUnknown(p.Creative.Status),
	}

	cr := p.Creative
	switch {
	case cr.VideoID != "":
		out.Format = FormatVideo
		out.MediaURL = "https://www.facebook.com/watch/?v=" + cr.VideoID
	case cr.ImageURL != "":
		out.Format = FormatImage
		out.MediaURL = cr.ImageURL
	case cr.InstagramPermalinkURL != "":
		out.Format = FormatCarousel
		out.MediaURL = cr.InstagramPermalinkURL
	case len(cr.ObjectStorySpec) > 0:
		var story struct {
			VideoData json.RawMessage `json:"video_data"`
			LinkData  struct {
				ImageHash string `json:"image_hash"`
			} `json:"link_data"`
		}
		if err := json.Unmarshal(cr.ObjectStorySpec, &story); err == nil {
			if len(story.VideoData) > 0 && string(story.VideoData) != "null" {
				out.Format = FormatVideo
			} else if story.LinkData.ImageHash != "" {
				out.Format = FormatImage
			}
		}
	}
	return out
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return Unknown
	}
	return v
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
