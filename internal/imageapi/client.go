// Package imageapi implements the image-API client (C1): one call in,
// one final image URL out, handling the submit-then-poll protocol against
// whichever of the three named queues (prod/dev/ops) a subtask selects.
// The submit/extract-uuid/poll/extract-url shape follows
// original_source/backend2/services/make_image.py's MakeImageService.
package imageapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/classifier"
	"github.com/sagan/gridgen/internal/config"
)

var logger = log.WithField("component", "imageapi")

// Request is everything one generate() call needs.
type Request struct {
	Queue      string
	Prompts    []PromptPayload
	Ratio      string
	Seed       int64
	Polish     bool
	ClientArgs map[string]any
}

// PromptPayload is the wire shape of one prompt item in the submit body.
type PromptPayload struct {
	Type   string  `json:"type"`
	Value  string  `json:"value"`
	Name   string  `json:"name,omitempty"`
	Weight float64 `json:"weight,omitempty"`
	ImgURL string  `json:"img_url,omitempty"`
}

// Response is the successful generate() result.
type Response struct {
	URL    string
	Width  int
	Height int
	Seed   int64
}

// Client talks to the three image-API queues over HTTP.
type Client struct {
	http   *resty.Client
	queues map[string]config.QueueConfig
}

func New(cfg *config.Config) *Client {
	hc := resty.New().
		SetTimeout(5 * time.Minute).
		SetHeader("Content-Type", "application/json")
	if cfg.MakeAPIToken != "" {
		hc.SetAuthToken(cfg.MakeAPIToken)
	}
	return &Client{http: hc, queues: cfg.Queues}
}

// CalculateDimensions solves w/h = W/H with w*h ~= targetArea, rounding each
// to the nearest multiple of 8; defaults to (1024,1024) on parse failure.
func CalculateDimensions(ratio string, targetArea float64) (width, height int) {
	parts := strings.SplitN(ratio, ":", 2)
	if len(parts) != 2 {
		return 1024, 1024
	}
	var w, h float64
	if _, err := fmt.Sscanf(parts[0], "%f", &w); err != nil || w <= 0 {
		return 1024, 1024
	}
	if _, err := fmt.Sscanf(parts[1], "%f", &h); err != nil || h <= 0 {
		return 1024, 1024
	}
	x := math.Sqrt(targetArea / (w * h))
	width = roundToMultipleOf8(w * x)
	height = roundToMultipleOf8(h * x)
	if width <= 0 || height <= 0 {
		return 1024, 1024
	}
	return width, height
}

func roundToMultipleOf8(v float64) int {
	return int(math.Round(v/8)) * 8
}

// submitPayload is the POST body to the submit endpoint.
type submitPayload struct {
	Prompts    []PromptPayload `json:"prompts"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Seed       int64           `json:"seed"`
	BatchSize  int             `json:"batch_size"`
	Quality    string          `json:"quality,omitempty"`
	UsePolish  bool            `json:"use_polish,omitempty"`
	ClientArgs map[string]any  `json:"client_args,omitempty"`
}

// Generate submits req to its queue and polls until a terminal status,
// returning the classified outcome alongside the response (Response is
// only meaningful when outcome.Kind == classifier.KindSuccess).
func (c *Client) Generate(ctx context.Context, req Request) (Response, classifier.Outcome) {
	q, ok := c.queues[req.Queue]
	if !ok {
		return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: fmt.Errorf("imageapi: unknown queue %q", req.Queue)}
	}

	width, height := CalculateDimensions(req.Ratio, 1024*1024)
	body := submitPayload{
		Prompts: req.Prompts, Width: width, Height: height, Seed: req.Seed,
		BatchSize: 1, UsePolish: req.Polish, ClientArgs: req.ClientArgs,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(q.SubmitURL)
	if err != nil {
		return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: err}
	}
	if resp.StatusCode() == 451 {
		return Response{}, classifier.Outcome{Kind: classifier.KindIllegalContent, Err: fmt.Errorf("imageapi: HTTP 451")}
	}
	if resp.IsError() {
		return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: fmt.Errorf("imageapi: submit status %d", resp.StatusCode())}
	}

	var direct string
	if err := json.Unmarshal(resp.Body(), &direct); err == nil && direct != "" {
		return c.poll(ctx, q, direct, req.Seed, width, height)
	}
	var submitted map[string]any
	if err := json.Unmarshal(resp.Body(), &submitted); err != nil {
		return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: err}
	}
	taskUUID, ok := extractUUID(submitted)
	if !ok {
		return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: fmt.Errorf("imageapi: no task uuid in response")}
	}

	return c.poll(ctx, q, taskUUID, req.Seed, width, height)
}

func (c *Client) poll(ctx context.Context, q config.QueueConfig, taskUUID string, seed int64, width, height int) (Response, classifier.Outcome) {
	for attempt := 0; attempt < q.MaxPollingAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: ctx.Err()}
		case <-time.After(q.PollingInterval):
		}

		resp, err := c.http.R().SetContext(ctx).SetQueryParam("task_id", taskUUID).Get(q.StatusURL)
		if err != nil {
			logger.WithError(err).WithField("attempt", attempt).Warn("poll request failed")
			continue
		}
		if resp.StatusCode() == 451 {
			return Response{}, classifier.Outcome{Kind: classifier.KindIllegalContent, Err: fmt.Errorf("imageapi: HTTP 451")}
		}

		var payload map[string]any
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			continue
		}

		status, _ := payload["task_status"].(string)
		switch strings.ToUpper(status) {
		case "ILLEGAL_IMAGE":
			return Response{}, classifier.Outcome{Kind: classifier.KindIllegalContent, Err: fmt.Errorf("imageapi: illegal image")}
		case "FAILURE", "ERROR", "FAILED":
			return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: fmt.Errorf("imageapi: task failure")}
		case "TIMEOUT":
			return Response{}, classifier.Outcome{Kind: classifier.KindTimeout, Err: fmt.Errorf("imageapi: server-reported timeout")}
		case "COMPLETED", "SUCCESS":
			url, ok := extractURL(payload)
			if !ok {
				return Response{}, classifier.Outcome{Kind: classifier.KindGenericFailure, Err: fmt.Errorf("imageapi: completed with no url")}
			}
			return Response{URL: url, Width: width, Height: height, Seed: seed}, classifier.Outcome{Kind: classifier.KindSuccess}
		}
		// any other/pending status: keep polling.
	}
	return Response{}, classifier.Outcome{Kind: classifier.KindTimeout, Err: fmt.Errorf("imageapi: exceeded %d polling attempts", q.MaxPollingAttempts)}
}

// extractUUID probes, in order, {uuid|task_uuid|id|task_id} at the top level
// and then under "data". A body that is a bare JSON string is taken as the
// uuid by Generate before this is called.
func extractUUID(payload map[string]any) (string, bool) {
	for _, key := range []string{"uuid", "task_uuid", "id", "task_id"} {
		if s, ok := payload[key].(string); ok {
			return s, true
		}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		for _, key := range []string{"uuid", "task_uuid", "id", "task_id"} {
			if s, ok := data[key].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// extractURL probes, in order: url, image_url, data.url, data.image_url,
// images[0] (string or {url}).
func extractURL(payload map[string]any) (string, bool) {
	if s, ok := payload["url"].(string); ok {
		return s, true
	}
	if s, ok := payload["image_url"].(string); ok {
		return s, true
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if s, ok := data["url"].(string); ok {
			return s, true
		}
		if s, ok := data["image_url"].(string); ok {
			return s, true
		}
	}
	if images, ok := payload["images"].([]any); ok && len(images) > 0 {
		switch first := images[0].(type) {
		case string:
			return first, true
		case map[string]any:
			if s, ok := first["url"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
