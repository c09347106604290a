package youtube

import (
	"regexp"
	"strconv"
	"strings"

	"muse/internal/core"
)

var (
	timestampRegex  = regexp.MustCompile(`(?:\d+:)+\d+`)
	videoStartRegex = regexp.MustCompile(`^(?:0{1,2}:)+00$`)
)

// ParseChapters extracts chapters from a video description.
//
// A line is a chapter marker when it holds exactly one timestamp. Markers are
// ignored until the first one that points at the start of the video (0:00 or
// 00:00), so timestamps in an intro paragraph do not create chapters. Each
// chapter lasts until the next marker; the last one lasts until the end of the
// video. Markers past the end of the video or out of order are dropped.
// Returns nil when the description has no chapters.
func ParseChapters(description string, videoDuration int) []core.Chapter {
	if description == "" {
		return nil
	}

	type marker struct {
		name   string
		offset int
	}

	var markers []marker
	foundStart := false

	for _, line := range strings.Split(description, "\n") {
		timestamps := timestampRegex.FindAllString(line, -1)
		if len(timestamps) != 1 {
			continue
		}
		timestamp := timestamps[0]

		if !foundStart {
			if !videoStartRegex.MatchString(timestamp) {
				continue
			}
			foundStart = true
		}

		offset := parseTimestamp(timestamp)
		// Chapters must partition the video: offsets strictly increase and stay inside it.
		if len(markers) > 0 && offset <= markers[len(markers)-1].offset {
			continue
		}
		if videoDuration > 0 && offset >= videoDuration {
			continue
		}

		markers = append(markers, marker{
			name:   strings.TrimSpace(strings.Replace(line, timestamp, "", 1)),
			offset: offset,
		})
	}

	if len(markers) == 0 {
		return nil
	}

	chapters := make([]core.Chapter, 0, len(markers))
	for i, m := range markers {
		end := videoDuration
		if i < len(markers)-1 {
			end = markers[i+1].offset
		}
		chapters = append(chapters, core.Chapter{
			Name:   m.name,
			Offset: m.offset,
			Length: max(end-m.offset, 0),
		})
	}

	return chapters
}

// parseTimestamp converts "h:mm:ss" / "m:ss" into seconds.
func parseTimestamp(timestamp string) int {
	seconds := 0
	for _, part := range strings.Split(timestamp, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	return seconds
}
