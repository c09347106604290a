package suno

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"muse/internal/core"
)

type generateRequest struct {
	MakeInstrumental     bool   `json:"make_instrumental"`
	Model                string `json:"mv"`
	Prompt               string `json:"prompt"`
	GPTDescriptionPrompt string `json:"gpt_description_prompt,omitempty"`
	Tags                 string `json:"tags,omitempty"`
	Title                string `json:"title,omitempty"`
}

type extendRequest struct {
	ContinueClipID string `json:"continue_clip_id"`
	ContinueAt     string `json:"continue_at"`
	Model          string `json:"mv"`
	Prompt         string `json:"prompt"`
	Tags           string `json:"tags"`
	Title          string `json:"title"`
}

type generateResponse struct {
	Clips []clip `json:"clips"`
}

// Generate creates songs from a free-form description. With wait it polls
// until the clips are playable; see waitForClips for the budget semantics.
func (c *Client) Generate(ctx context.Context, prompt string, instrumental bool, model string, wait bool) ([]AudioInfo, error) {
	return c.generate(ctx, generateRequest{
		MakeInstrumental:     instrumental,
		Model:                modelOrDefault(model),
		GPTDescriptionPrompt: prompt,
	}, wait)
}

// CustomGenerate creates songs from explicit lyrics, style tags and a title.
func (c *Client) CustomGenerate(
	ctx context.Context,
	prompt, tags, title string,
	instrumental bool,
	model string,
	wait bool,
) ([]AudioInfo, error) {
	return c.generate(ctx, generateRequest{
		MakeInstrumental: instrumental,
		Model:            modelOrDefault(model),
		Prompt:           prompt,
		Tags:             tags,
		Title:            title,
	}, wait)
}

func (c *Client) generate(ctx context.Context, payload generateRequest, wait bool) ([]AudioInfo, error) {
	var resp generateResponse
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/api/generate/v2/", payload, generateTimeout, &resp); err != nil {
		return nil, fmt.Errorf("suno generate: %w", err)
	}

	ids := make([]string, 0, len(resp.Clips))
	for _, created := range resp.Clips {
		ids = append(ids, created.ID)
	}
	c.logger.Info("Started Suno generation",
		zap.Strings("ids", ids),
		zap.String("model", payload.Model),
		zap.Bool("wait", wait))

	if !wait {
		return toAudioInfos(resp.Clips), nil
	}
	return c.waitForClips(ctx, ids)
}

// waitForClips polls the feed until every clip is playable or every clip
// failed. When the poll budget runs out first, the last observed batch is
// returned without an error and callers must check each status. Cancelling
// ctx stops polling and returns ctx's error alongside the last batch.
func (c *Client) waitForClips(ctx context.Context, ids []string) ([]AudioInfo, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, c.pollBudget)
	defer cancel()

	var last []AudioInfo
	wait := c.pollInitialWait
	for {
		if err := sleep(budgetCtx, wait); err != nil {
			break
		}

		batch, err := c.Get(budgetCtx, ids)
		switch {
		case err == nil:
			if finished(batch) {
				return batch, nil
			}
			last = batch
		case errors.Is(err, core.ErrAuth):
			return last, err
		case budgetCtx.Err() != nil:
			// budget ran out mid-request
		default:
			c.logger.Warn("Suno feed poll failed", zap.Strings("ids", ids), zap.Error(err))
		}

		if budgetCtx.Err() != nil {
			break
		}
		wait = jitter(c.pollMinInterval, c.pollMaxInterval)
	}

	if err := ctx.Err(); err != nil {
		return last, err
	}
	c.logger.Warn("Suno generation did not finish within budget",
		zap.Strings("ids", ids),
		zap.Duration("budget", c.pollBudget))
	return last, nil
}

// ExtendAudio continues an existing clip from continueAt (seconds, "0" for the end).
func (c *Client) ExtendAudio(ctx context.Context, clipID, prompt, continueAt, tags, title, model string) ([]AudioInfo, error) {
	if continueAt == "" {
		continueAt = "0"
	}

	var resp generateResponse
	payload := extendRequest{
		ContinueClipID: clipID,
		ContinueAt:     continueAt,
		Model:          modelOrDefault(model),
		Prompt:         prompt,
		Tags:           tags,
		Title:          title,
	}
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/api/generate/v2/", payload, generateTimeout, &resp); err != nil {
		return nil, fmt.Errorf("suno extend: %w", err)
	}
	return toAudioInfos(resp.Clips), nil
}

// Concatenate joins a clip with the clips it extends into the whole song.
func (c *Client) Concatenate(ctx context.Context, clipID string) (AudioInfo, error) {
	var resp clip
	payload := map[string]string{"clip_id": clipID}
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/api/generate/concat/v2/", payload, generateTimeout, &resp); err != nil {
		return AudioInfo{}, fmt.Errorf("suno concatenate: %w", err)
	}
	return resp.toAudioInfo(), nil
}

// GenerateLyrics starts a lyrics generation and polls until it completes or ctx ends.
func (c *Client) GenerateLyrics(ctx context.Context, prompt string) (Lyrics, error) {
	var started struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/api/generate/lyrics/", map[string]string{"prompt": prompt}, 0, &started); err != nil {
		return Lyrics{}, fmt.Errorf("suno generate lyrics: %w", err)
	}

	url := c.baseURL + "/api/generate/lyrics/" + started.ID
	for {
		var lyrics Lyrics
		if err := c.call(ctx, http.MethodGet, url, nil, 0, &lyrics); err != nil {
			return Lyrics{}, fmt.Errorf("suno lyrics status: %w", err)
		}
		if lyrics.Status == string(StatusComplete) {
			return lyrics, nil
		}
		if err := sleep(ctx, c.lyricsInterval); err != nil {
			return Lyrics{}, err
		}
	}
}

func modelOrDefault(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}
