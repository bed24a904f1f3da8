package vault

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var dated = map[string]string{"date": "2025-01-01"}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields map[string]string
		want   []string
	}{
		{"clean", "Just prose with a [short link](https://example.com).", dated, []string{}},
		{"no date", "prose", map[string]string{}, []string{WarnNoDate}},
		{"todo", "FIXME later", dated, []string{WarnTodos}},
		{"relative image", "![chart](./chart.svg)", dated, []string{WarnLocalImages}},
		{"attachments image", "![chart](/attachments/chart.svg)", dated, []string{WarnLocalImages}},
		{"empty link", "see [this]()", dated, []string{WarnBrokenLink}},
		{"empty wikilink", "see [[]]", dated, []string{WarnBrokenLink}},
		{"local png", "![a chart](images/chart.png)", dated, []string{WarnLocalMedia}},
		{"cdn png", "![a chart](https://res.cloudinary.com/demo/image/upload/chart.png)", dated, []string{}},
		{"empty image always local", "![]() and https://res.cloudinary.com/x", dated, []string{WarnBrokenLink, WarnLocalMedia}},
		{"html img without host", `<img src="chart.svg">`, dated, []string{WarnLocalMedia}},
		{"relative image and html img", `![a](./a.png) <img src="b.png">`, dated, []string{WarnLocalImages, WarnLocalMedia}},
		{"html img with https", `<img src="https://example.com/chart.svg">`, dated, []string{}},
		{"local video", "[clip](clip.mp4)", dated, []string{WarnLocalVideo}},
		{"cdn video", `<video src="https://res.cloudinary.com/demo/video/upload/clip.mp4">`, dated, []string{}},
		{"long link text", "[one two three four five](https://example.com)", dated, []string{WarnLongLinkText}},
		{"four words ok", "[one two three four](https://example.com)", dated, []string{}},
		{"long emphasised link", "[one *two three* four five](https://example.com)", dated, []string{WarnLongLinkText}},
		{"long image alt ignored", "![one two three four five six](https://res.cloudinary.com/demo/image/upload/a.svg)", dated, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Warnings(tt.body, tt.fields, Rules{CDNHost: "res.cloudinary.com", LongLinkWords: 4})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWarnings_CombinedDocument(t *testing.T) {
	body := "TODO finish\n\n[click here to read more about this topic](./x.png)\n"
	got := Warnings(body, map[string]string{}, Rules{})
	want := []string{WarnNoDate, WarnTodos, WarnLocalImages, WarnLongLinkText}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestWarnings_LinkWordThreshold(t *testing.T) {
	body := "[one two three](https://example.com)"
	if got := Warnings(body, dated, Rules{LongLinkWords: 2}); len(got) != 1 || got[0] != WarnLongLinkText {
		t.Errorf("threshold 2: got %v", got)
	}
}
