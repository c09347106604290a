package suno

import (
	"encoding/json"
	"strings"
)

// DefaultModel is the generation model used when none is requested.
const DefaultModel = "chirp-v3-5"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// AudioInfo describes one generated clip.
type AudioInfo struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title,omitempty"`
	ImageURL             string  `json:"image_url,omitempty"`
	Lyric                string  `json:"lyric,omitempty"`
	AudioURL             string  `json:"audio_url,omitempty"`
	VideoURL             string  `json:"video_url,omitempty"`
	CreatedAt            string  `json:"created_at"`
	ModelName            string  `json:"model_name"`
	Status               Status  `json:"status"`
	GPTDescriptionPrompt string  `json:"gpt_description_prompt,omitempty"`
	Prompt               string  `json:"prompt,omitempty"`
	Type                 string  `json:"type,omitempty"`
	Tags                 string  `json:"tags,omitempty"`
	Duration             float64 `json:"duration,omitempty"`
	ErrorMessage         string  `json:"error_message,omitempty"`
}

// Credits is the account's billing state.
type Credits struct {
	CreditsLeft  int    `json:"credits_left"`
	Period       string `json:"period"`
	MonthlyLimit int    `json:"monthly_limit"`
	MonthlyUsage int    `json:"monthly_usage"`
}

// Lyrics is a finished lyrics generation.
type Lyrics struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// SongPage is the metadata shown on a public song page.
type SongPage struct {
	Title    string
	Author   string
	ImageURL string
}

// clip is a clip as returned by the feed and generate endpoints.
type clip struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url"`
	AudioURL  string `json:"audio_url"`
	VideoURL  string `json:"video_url"`
	CreatedAt string `json:"created_at"`
	ModelName string `json:"model_name"`
	Status    Status `json:"status"`
	Metadata  struct {
		Prompt               string      `json:"prompt"`
		GPTDescriptionPrompt string      `json:"gpt_description_prompt"`
		Type                 string      `json:"type"`
		Tags                 string      `json:"tags"`
		Duration             json.Number `json:"duration"`
		ErrorMessage         string      `json:"error_message"`
	} `json:"metadata"`
}

func (c clip) toAudioInfo() AudioInfo {
	duration, _ := c.Metadata.Duration.Float64()
	return AudioInfo{
		ID:                   c.ID,
		Title:                c.Title,
		ImageURL:             c.ImageURL,
		Lyric:                cleanLyrics(c.Metadata.Prompt),
		AudioURL:             c.AudioURL,
		VideoURL:             c.VideoURL,
		CreatedAt:            c.CreatedAt,
		ModelName:            c.ModelName,
		Status:               c.Status,
		GPTDescriptionPrompt: c.Metadata.GPTDescriptionPrompt,
		Prompt:               c.Metadata.Prompt,
		Type:                 c.Metadata.Type,
		Tags:                 c.Metadata.Tags,
		Duration:             duration,
		ErrorMessage:         c.Metadata.ErrorMessage,
	}
}

func toAudioInfos(clips []clip) []AudioInfo {
	infos := make([]AudioInfo, 0, len(clips))
	for _, c := range clips {
		infos = append(infos, c.toAudioInfo())
	}
	return infos
}

// cleanLyrics drops blank lines.
func cleanLyrics(prompt string) string {
	var lines []string
	for _, line := range strings.Split(prompt, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// finished reports whether every clip reached a playable state, or every clip failed.
func finished(batch []AudioInfo) bool {
	if len(batch) == 0 {
		return false
	}

	allPlayable, allFailed := true, true
	for _, audio := range batch {
		if audio.Status != StatusStreaming && audio.Status != StatusComplete {
			allPlayable = false
		}
		if audio.Status != StatusError {
			allFailed = false
		}
	}
	return allPlayable || allFailed
}
