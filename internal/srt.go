package internal

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

var captionTagRe = regexp.MustCompile(`<[^>]+>`)

// IsCaptionFile reports whether name looks like an SRT or WebVTT file
func IsCaptionFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".srt") || strings.HasSuffix(lower, ".vtt")
}

// ReadCaptions converts an SRT or WebVTT stream into plain text
func ReadCaptions(r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading captions: %w", err)
	}
	return CaptionsToText(string(content)), nil
}

// CaptionsToText strips cue numbers, timestamps and markup, then joins the
// deduplicated caption lines
func CaptionsToText(content string) string {
	lines := removeDuplicates(parseCaptions(content))
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseCaptions extracts text content from SRT or WebVTT cue blocks
func parseCaptions(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	var lines []string
	for block := range strings.SplitSeq(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "WEBVTT") || strings.HasPrefix(block, "NOTE") {
			continue
		}

		seenTiming := false
		for line := range strings.SplitSeq(block, "\n") {
			line = strings.TrimSpace(line)
			if strings.Contains(line, "-->") {
				seenTiming = true
				continue
			}
			// cue identifiers precede the timing line
			if !seenTiming {
				continue
			}
			line = strings.TrimSpace(captionTagRe.ReplaceAllString(line, ""))
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	}

	return lines
}

// removeDuplicates collapses consecutive identical lines. A line that
// continues the previous one word for word (a rolled-over cue) replaces it.
func removeDuplicates(lines []string) []string {
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if n := len(result); n > 0 {
			prev := result[n-1]
			if line == prev {
				continue
			}
			if strings.HasPrefix(line, prev+" ") {
				result[n-1] = line
				continue
			}
		}
		result = append(result, line)
	}

	return result
}
