package internal

import (
	"strings"
	"testing"
)

func TestCaptionsToText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "srt",
			content: "1\r\n00:00:01,000 --> 00:00:03,000\r\nHello there\r\n\r\n2\r\n00:00:03,000 --> 00:00:05,000\r\nGeneral <b>Kenobi</b>\r\n",
			want:    "Hello there\nGeneral Kenobi",
		},
		{
			name: "webvtt",
			content: "WEBVTT\n\nNOTE made by hand\n\nintro\n00:00.000 --> 00:02.000 align:start\n" +
				"First line\n\n00:02.000 --> 00:04.000\n<c.yellow>Second line</c>\n",
			want: "First line\nSecond line",
		},
		{
			name: "rolling duplicates",
			content: "1\n00:00:00,000 --> 00:00:01,000\nwe are going\n\n" +
				"2\n00:00:01,000 --> 00:00:02,000\nwe are going\n\n" +
				"3\n00:00:02,000 --> 00:00:03,000\nsomewhere new\n",
			want: "we are going\nsomewhere new",
		},
		{
			name: "rolled over cue keeps the longer line",
			content: "1\n00:00:00,000 --> 00:00:01,000\nNo.\n\n" +
				"2\n00:00:01,000 --> 00:00:02,000\nNo. I completely disagree with that.\n",
			want: "No. I completely disagree with that.",
		},
		{
			name: "short reply before a longer line",
			content: "1\n00:00:00,000 --> 00:00:01,000\nNo.\n\n" +
				"2\n00:00:01,000 --> 00:00:03,000\nI completely disagree with that.\n\n" +
				"3\n00:00:03,000 --> 00:00:04,000\nNo\n\n" +
				"4\n00:00:04,000 --> 00:00:05,000\nNobody said that.\n",
			want: "No.\nI completely disagree with that.\nNo\nNobody said that.",
		},
		{
			name: "contained line is kept",
			content: "1\n00:00:00,000 --> 00:00:01,000\nthe whole story is long\n\n" +
				"2\n00:00:01,000 --> 00:00:02,000\nstory\n",
			want: "the whole story is long\nstory",
		},
		{
			name:    "empty",
			content: "\ufeffWEBVTT\n\n",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CaptionsToText(tt.content); got != tt.want {
				t.Fatalf("CaptionsToText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadCaptions(t *testing.T) {
	got, err := ReadCaptions(strings.NewReader("1\n00:00:00,000 --> 00:00:01,000\nhi\n"))
	if err != nil {
		t.Fatalf("ReadCaptions: %v", err)
	}
	if got != "hi" {
		t.Fatalf("got %q", got)
	}
}

func TestIsCaptionFile(t *testing.T) {
	for name, want := range map[string]bool{
		"episode.srt": true,
		"EPISODE.VTT": true,
		"episode.mp4": false,
		"srt":         false,
	} {
		if got := IsCaptionFile(name); got != want {
			t.Errorf("IsCaptionFile(%q) = %v, want %v", name, got, want)
		}
	}
}
