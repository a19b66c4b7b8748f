package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tiksql/internal/dataset"
)

func TestShortHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 10, ""},
		{"a", 10, "2P"},
		{"ab", 10, "2E9"},
		{"ab", 2, "2E"},
	}
	for _, tc := range tests {
		if got := ShortHash(tc.in, tc.n); got != tc.want {
			t.Fatalf("ShortHash(%q,%d)=%q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestVideoHash(t *testing.T) {
	t.Parallel()

	long := "https://example.com/abcdefghijklmnopqrstuvwxyz"
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://www.tiktokv.com/share/video/7123456789/", "7123456789"},
		{"https://www.tiktokv.com/share/video/42", "42"},
		{"https://example.com/videos/clip.mp4?x=1", "clip.mp4"},
		{long, ShortHash(long, 10)},
		{"no-slashes", ShortHash("no-slashes", 12)},
	}
	for _, tc := range tests {
		if got := VideoHash(tc.in); got != tc.want {
			t.Fatalf("VideoHash(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShortenAndSmartTruncate(t *testing.T) {
	t.Parallel()

	if got := Shorten("short", 10, false, "..."); got != "short" {
		t.Fatalf("Shorten(short)=%q", got)
	}
	if got := Shorten("hello world foo bar", 10, false, "..."); got != "hello w..." {
		t.Fatalf("Shorten=%q, want %q", got, "hello w...")
	}
	if got := Shorten("go https://x.io/abcdef end", 10, true, "..."); got != "go https://x.io/abcdef..." {
		t.Fatalf("Shorten(preserve)=%q", got)
	}
	if got := SmartTruncate("hello world foo bar", 10, "..."); got != "hello..." {
		t.Fatalf("SmartTruncate=%q, want %q", got, "hello...")
	}
}

func TestRewrite_Messages(t *testing.T) {
	t.Parallel()

	o, err := Preset("default")
	if err != nil {
		t.Fatalf("Preset err=%v", err)
	}
	dm := Processors["direct_messages"]
	tests := []struct {
		in   string
		want string
	}{
		{"see https://www.tiktokv.com/share/video/123 now", "see 123 now"},
		{"look [https://cdn.x.com/a/pic.jpg?sig=1]", "look pic.jpg"},
		{"https://cdn.x.com/media/song.mp3 lol", "song.mp3 lol"},
		{"read https://example.org/page/about", "read https://example.org/page/about"},
		{"<b>hi</b> there", "hi there"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := Rewrite(tc.in, dm, o); got != tc.want {
			t.Fatalf("Rewrite(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewrite_Links(t *testing.T) {
	t.Parallel()

	o, _ := Preset("quick")
	if got := Rewrite("https://www.tiktokv.com/share/video/99/", Processors["posts"], o); got != "99" {
		t.Fatalf("posts=%q", got)
	}
	if got := Rewrite("[https://sf.tiktokcdn.com/obj/track.mp3]", Processors["favorite_sounds"], o); got != "track.mp3" {
		t.Fatalf("sounds=%q", got)
	}
	if got := Rewrite("https://www.tiktok.com/x/effect/12345?lang=en", Processors["favorite_effects"], o); got != "12345" {
		t.Fatalf("effects=%q", got)
	}
	o.ExtractVideoID = false
	if got := Rewrite("https://www.tiktokv.com/share/video/99/", Processors["posts"], o); got != "https://www.tiktokv.com/share/video/99/" {
		t.Fatalf("posts without extraction=%q", got)
	}
}

func TestPreset_Unknown(t *testing.T) {
	t.Parallel()

	if _, err := Preset("tiny"); err == nil {
		t.Fatalf("Preset(tiny) err=nil, want error")
	}
	o, _ := Preset("max")
	if o.MaxLength != 50 || !o.SmartTruncate || o.PreserveURLs {
		t.Fatalf("Preset(max)=%+v", o)
	}
}

func row(kv ...any) *dataset.Row {
	r := dataset.NewRow()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestNormalizer_Apply(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	ds.Append("direct_messages",
		row("message_content", strings.Repeat("word ", 40)),
		row("message_content", "ok"),
		row("message_content", nil),
		row("chat_identifier", "Bob"),
	)
	ds.Append("posts", row("video_link", "https://www.tiktokv.com/share/video/7/"))
	ds.Append("searches", row("search_term", strings.Repeat("x", 300)))

	var calls int
	n := Normalizer{ChunkSize: 2, OnProgress: func(processed, total int) {
		calls++
		if total != 5 {
			t.Errorf("total=%d, want 5", total)
		}
	}}
	changed, err := n.Apply(context.Background(), ds, Options{MaxLength: 20, ExtractVideoID: true})
	if err != nil {
		t.Fatalf("Apply err=%v", err)
	}
	if changed != 2 {
		t.Fatalf("changed=%d, want 2", changed)
	}
	if v, _ := ds.Tables["direct_messages"][0].Get("message_content"); len([]rune(v.(string))) > 20 {
		t.Fatalf("message not shortened: %q", v)
	}
	if v, _ := ds.Tables["posts"][0].Get("video_link"); v != "7" {
		t.Fatalf("video_link=%v, want 7", v)
	}
	if v, _ := ds.Tables["searches"][0].Get("search_term"); len(v.(string)) != 300 {
		t.Fatalf("unregistered table rewritten")
	}
	if calls == 0 {
		t.Fatalf("OnProgress never called")
	}
}

func TestNormalizer_ApplyTablesFilterAndEmpty(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	ds.Append("posts", row("video_link", "https://www.tiktokv.com/share/video/7/"))

	changed, err := Normalizer{}.Apply(context.Background(), ds, Options{ExtractVideoID: true, Tables: []string{"comments"}})
	if err != nil || changed != 0 {
		t.Fatalf("Apply=%d,%v, want 0,nil", changed, err)
	}
}

func TestNormalizer_ApplyCancelled(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	for i := 0; i < 3; i++ {
		ds.Append("comments", row("comment_text", "x"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (Normalizer{ChunkSize: 1}).Apply(ctx, ds, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply err=%v, want context.Canceled", err)
	}
}
