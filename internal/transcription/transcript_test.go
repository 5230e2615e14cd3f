package transcription

import (
	"testing"
)

const labelledTranscript = `{
  "jobName": "job",
  "status": "COMPLETED",
  "results": {
    "transcripts": [{"transcript": "Hello, thanks for calling. Hi, my bill is wrong."}],
    "speaker_labels": {
      "speakers": 2,
      "segments": [
        {"speaker_label": "spk_0", "start_time": "0.0", "end_time": "1.5",
         "items": [{"start_time": "0.0", "speaker_label": "spk_0"}, {"start_time": "0.6", "speaker_label": "spk_0"}, {"start_time": "0.9", "speaker_label": "spk_0"}, {"start_time": "1.2", "speaker_label": "spk_0"}]},
        {"speaker_label": "spk_1", "start_time": "2.0", "end_time": "3.4",
         "items": [{"start_time": "2.0", "speaker_label": "spk_1"}, {"start_time": "2.3", "speaker_label": "spk_1"}, {"start_time": "2.5", "speaker_label": "spk_1"}, {"start_time": "2.8", "speaker_label": "spk_1"}, {"start_time": "3.1", "speaker_label": "spk_1"}]}
      ]
    },
    "items": [
      {"start_time": "0.0", "end_time": "0.5", "type": "pronunciation", "alternatives": [{"confidence": "0.9", "content": "Hello"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": ","}]},
      {"start_time": "0.6", "end_time": "0.8", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "thanks"}]},
      {"start_time": "0.9", "end_time": "1.1", "type": "pronunciation", "alternatives": [{"confidence": "0.8", "content": "for"}]},
      {"start_time": "1.2", "end_time": "1.5", "type": "pronunciation", "alternatives": [{"confidence": "0.9", "content": "calling"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": "."}]},
      {"start_time": "2.0", "end_time": "2.2", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "Hi"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": ","}]},
      {"start_time": "2.3", "end_time": "2.4", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "my"}]},
      {"start_time": "2.5", "end_time": "2.7", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "bill"}]},
      {"start_time": "2.8", "end_time": "3.0", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "is"}]},
      {"start_time": "3.1", "end_time": "3.4", "type": "pronunciation", "alternatives": [{"confidence": "1.0", "content": "wrong"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": "."}]}
    ]
  }
}`

func TestParseAWSTranscript_Segments(t *testing.T) {
	tr, err := ParseAWSTranscript([]byte(labelledTranscript))
	if err != nil {
		t.Fatalf("ParseAWSTranscript() error = %v", err)
	}
	if tr.Text != "Hello, thanks for calling. Hi, my bill is wrong." {
		t.Errorf("Text = %q", tr.Text)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(tr.Segments), tr.Segments)
	}

	tests := []struct {
		speaker string
		text    string
		start   float64
		end     float64
	}{
		{"speaker_1", "Hello, thanks for calling.", 0.0, 1.5},
		{"speaker_2", "Hi, my bill is wrong.", 2.0, 3.4},
	}
	for i, tt := range tests {
		seg := tr.Segments[i]
		if seg.Speaker != tt.speaker || seg.Text != tt.text || seg.StartTime != tt.start || seg.EndTime != tt.end {
			t.Errorf("segment %d = %+v, want %+v", i, seg, tt)
		}
	}
	if c := tr.Segments[0].Confidence; c < 0.899 || c > 0.901 {
		t.Errorf("segment 0 confidence = %v, want 0.9", c)
	}
}

func TestParseAWSTranscript_NoSpeakerLabels(t *testing.T) {
	tr, err := ParseAWSTranscript([]byte(`{"results":{"transcripts":[{"transcript":" just text "}],"items":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text != "just text" || len(tr.Segments) != 0 {
		t.Errorf("got %+v", tr)
	}
}

func TestParseAWSTranscript_Invalid(t *testing.T) {
	for _, in := range []string{`not json`, `{"results":{"transcripts":[]}}`} {
		if _, err := ParseAWSTranscript([]byte(in)); err == nil {
			t.Errorf("ParseAWSTranscript(%q) expected error", in)
		}
	}
}

func TestMediaFormatForURI(t *testing.T) {
	tests := map[string]string{
		"s3://b/call.MP3":  "mp3",
		"s3://b/call.m4a":  "mp4",
		"s3://b/call.wav":  "wav",
		"s3://b/call.webm": "webm",
		"s3://b/call":      "mp3",
	}
	for uri, want := range tests {
		if got := MediaFormatForURI(uri); got != want {
			t.Errorf("MediaFormatForURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestSpeakerRole(t *testing.T) {
	tests := map[string]string{
		"spk_0":     "speaker_1",
		"spk_9":     "speaker_10",
		"agent":     "agent",
		"spk_x":     "spk_x",
		"speaker_1": "speaker_1",
	}
	for in, want := range tests {
		if got := SpeakerRole(in); got != want {
			t.Errorf("SpeakerRole(%q) = %q, want %q", in, got, want)
		}
	}
}
