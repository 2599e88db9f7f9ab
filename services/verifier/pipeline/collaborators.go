// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// Collaborators are the media-handling seams of the pipeline. Each one is
// optional: the zero value of Collaborators runs text and URL inputs end to
// end and degrades image, audio, video, and rendering to absent outputs.

// OCR extracts text from an image and optionally renders a tamper heatmap.
type OCR interface {
	// ImageText returns the text recognized in the image, empty when none.
	ImageText(ctx context.Context, imagePath string) (string, error)

	// Heatmap writes an error-level-analysis visualization and returns its
	// path, empty when the analyzer does not produce one.
	Heatmap(ctx context.Context, imagePath string) (string, error)
}

// KeyframeExtractor pulls representative frames from a video.
type KeyframeExtractor interface {
	Keyframes(ctx context.Context, videoPath string, maxFrames int) ([]string, error)
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Renderer produces the shareable report artifacts. Implementations return
// the written file path, or empty when rendering is unavailable.
type Renderer interface {
	ShareCard(ctx context.Context, verdict string, confidence float64, claim string) (string, error)
	PDFReport(ctx context.Context, report *datatypes.Report) (string, error)
}

// TextFetcher resolves a URL to readable text.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Collaborators bundles the optional media handlers. Nil fields are
// replaced with inert implementations; TextFetcher defaults to a bounded
// HTTP fetch with tag stripping.
type Collaborators struct {
	OCR         OCR
	Keyframes   KeyframeExtractor
	Transcriber Transcriber
	Renderer    Renderer
	TextFetcher TextFetcher
}

func (c Collaborators) withDefaults() Collaborators {
	if c.OCR == nil {
		c.OCR = noopOCR{}
	}
	if c.Keyframes == nil {
		c.Keyframes = noopKeyframes{}
	}
	if c.Transcriber == nil {
		c.Transcriber = noopTranscriber{}
	}
	if c.Renderer == nil {
		c.Renderer = noopRenderer{}
	}
	if c.TextFetcher == nil {
		c.TextFetcher = NewHTTPTextFetcher(0)
	}
	return c
}

type noopOCR struct{}

func (noopOCR) ImageText(context.Context, string) (string, error) { return "", nil }
func (noopOCR) Heatmap(context.Context, string) (string, error)   { return "", nil }

type noopKeyframes struct{}

func (noopKeyframes) Keyframes(context.Context, string, int) ([]string, error) { return nil, nil }

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(context.Context, string) (string, error) { return "", nil }

type noopRenderer struct{}

func (noopRenderer) ShareCard(context.Context, string, float64, string) (string, error) {
	return "", nil
}

func (noopRenderer) PDFReport(context.Context, *datatypes.Report) (string, error) {
	return "", nil
}

// HTTPTextFetcher is the default TextFetcher: a plain GET with a bounded
// timeout, followed by markup stripping and whitespace collapse. It makes
// no attempt at article extraction; callers wanting readability-grade
// output plug in their own TextFetcher.
type HTTPTextFetcher struct {
	http *resty.Client
}

const (
	fetcherUserAgent     = "AgentraFactCheck/1.0"
	defaultFetchTimeout  = 15 * time.Second
	maxFetchedBodyLength = 200_000
)

var (
	scriptRE = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRE    = regexp.MustCompile(`<[^>]+>`)
)

// NewHTTPTextFetcher builds the default fetcher. A non-positive timeout
// selects the 15s default.
func NewHTTPTextFetcher(timeout time.Duration) *HTTPTextFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", fetcherUserAgent)
	return &HTTPTextFetcher{http: client}
}

// FetchText GETs the URL and returns its visible text.
func (f *HTTPTextFetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}

	body := resp.String()
	if len(body) > maxFetchedBodyLength {
		body = body[:maxFetchedBodyLength]
	}
	body = scriptRE.ReplaceAllString(body, " ")
	body = tagRE.ReplaceAllString(body, " ")
	return collapseWhitespace(body), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
