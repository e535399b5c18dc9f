package scene

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
	"github.com/dotcommander/vbook/internal/storage"
)

var testParent = story.Unit{CollectionID: 1, UnitIndex: 2, Work: story.NewWork("Mara climbed the tower as the storm rolled in.")}

func TestExtractorProduce(t *testing.T) {
	reply := "```json\n" + `{"scene_number": 9, "scene_description": "Mara climbs the tower.",
		"characters_present": ["Mara"], "setting": "lighthouse at dusk", "mood": "dread",
		"action": "lamp flickers", "camera_angle": "low angle",}` + "\n```"
	mock := agent.NewMockClient().On(OpExtractScene, reply)
	e := NewExtractor(mock, phase.NewPrompts(""), "Mara: grey coat, lantern", 2, 1000)

	item := story.Item{CollectionID: 1, UnitIndex: 2, ItemIndex: 1}
	out, err := e.Produce(context.Background(), item, testParent)
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}

	item.Set(story.FieldExtractedDescription, out)
	got, err := ParseDescription(item)
	if err != nil {
		t.Fatal(err)
	}
	want := Description{
		SceneNumber:       1,
		SceneDescription:  "Mara climbs the tower.",
		CharactersPresent: []string{"Mara"},
		Setting:           "lighthouse at dusk",
		Mood:              "dread",
		Action:            "lamp flickers",
		CameraAngle:       "low angle",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("description mismatch (-want +got):\n%s", diff)
	}

	req := mock.Requests()[0]
	if !req.JSON {
		t.Error("extract request should ask for JSON")
	}
	for _, s := range []string{"Mara: grey coat, lantern", "Chapter 1, Act 2", "into 2 equal parts", "part 1."} {
		if !strings.Contains(req.User, s) {
			t.Errorf("prompt missing %q:\n%s", s, req.User)
		}
	}
}

func TestExtractorKeepsLongActValidUTF8(t *testing.T) {
	reply := `{"scene_description": "Mara waits.", "characters_present": ["Mara"], "setting": "quay",
		"mood": "calm", "action": "waiting", "camera_angle": "wide"}`
	mock := agent.NewMockClient().On(OpExtractScene, reply)
	e := NewExtractor(mock, phase.NewPrompts(""), "", 2, 1000)

	// Two-byte runes make a byte cut at the excerpt limit land mid-rune.
	parent := story.Unit{CollectionID: 1, UnitIndex: 1, Work: story.NewWork("x" + strings.Repeat("é", actExcerptLimit))}
	if _, err := e.Produce(context.Background(), story.Item{CollectionID: 1, UnitIndex: 1, ItemIndex: 1}, parent); err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	user := mock.Requests()[0].User
	if !utf8.ValidString(user) {
		t.Error("extract prompt is not valid UTF-8")
	}
	if strings.Count(user, "é") != actExcerptLimit-1 {
		t.Errorf("extract prompt kept %d accented runes, want %d", strings.Count(user, "é"), actExcerptLimit-1)
	}
}

func TestExtractorFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		parent story.Unit
		check  func(error) bool
	}{
		{
			name:   "empty act is missing input",
			parent: story.Unit{CollectionID: 1, UnitIndex: 1},
			check:  func(err error) bool { return errors.Is(err, core.ErrMissingInput) },
		},
		{
			name:   "unparseable reply",
			reply:  "I would rather not.",
			parent: testParent,
			check:  core.IsMalformed,
		},
		{
			name:   "blank description",
			reply:  `{"scene_description": "  "}`,
			parent: testParent,
			check:  core.IsMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := agent.NewMockClient().On(OpExtractScene, tt.reply)
			e := NewExtractor(mock, phase.NewPrompts(""), "", 2, 1000)
			_, err := e.Produce(context.Background(), story.Item{CollectionID: 1, UnitIndex: 1, ItemIndex: 1}, tt.parent)
			if err == nil || !tt.check(err) {
				t.Errorf("Produce() error = %v", err)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	d := Description{
		SceneDescription:  "Mara climbs the tower.",
		CharactersPresent: []string{"Mara", "Tobin"},
		Setting:           "lighthouse at dusk",
		Mood:              "dread",
		Action:            "The lamp flickers",
		CameraAngle:       "Low angle",
	}
	got := BuildPrompt("Ink wash.", d)
	want := "Ink wash. Mara climbs the tower. Setting: lighthouse at dusk. Mood: dread. The lamp flickers. " +
		"Low angle shot. Characters present: Mara, Tobin."
	if got != want {
		t.Errorf("BuildPrompt() =\n%q\nwant\n%q", got, want)
	}

	long := Description{SceneDescription: strings.Repeat("wave ", 400)}
	if n := len([]rune(BuildPrompt("style", long))); n != MaxPromptChars {
		t.Errorf("long prompt length = %d, want %d", n, MaxPromptChars)
	}
}

func TestPromptWriterNeedsDescription(t *testing.T) {
	p := NewPromptWriter("style")
	_, err := p.Produce(context.Background(), story.Item{CollectionID: 1, UnitIndex: 1, ItemIndex: 1}, testParent)
	if !errors.Is(err, core.ErrMissingInput) {
		t.Errorf("Produce() error = %v, want ErrMissingInput", err)
	}
}

func newRenderServer(t *testing.T, failFirst bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var posts atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			n := posts.Add(1)
			if failFirst && n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if r.Header.Get("Authorization") != "Key fal-test" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var req renderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NumImages != 1 || req.ImageSize != "landscape_16_9" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if len([]rune(req.Prompt)) > MaxPromptChars {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"images": []map[string]string{{"url": srv.URL + "/files/out.jpg"}},
			})
		case r.URL.Path == "/files/out.jpg":
			w.Write([]byte("JPEGDATA"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &posts
}

func testRenderer(apiKey, endpoint string) *HTTPRenderer {
	return NewHTTPRenderer(apiKey, endpoint, "landscape_16_9",
		WithRendererRateLimit(6000, 10),
		WithRendererRetrier(core.NewRetrier(core.DefaultResilienceConfig(), core.IsTransient).WithoutDelay()))
}

func TestHTTPRenderer(t *testing.T) {
	srv, posts := newRenderServer(t, true)
	r := testRenderer("fal-test", srv.URL+"/fal-ai/flux")

	data, ext, err := r.Render(context.Background(), strings.Repeat("x", 2000))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(data) != "JPEGDATA" || ext != ".jpg" {
		t.Errorf("Render() = %q, %q", data, ext)
	}
	if posts.Load() != 2 {
		t.Errorf("posts = %d, want a retry after the 503", posts.Load())
	}
}

func TestHTTPRendererErrors(t *testing.T) {
	srv, _ := newRenderServer(t, false)

	_, _, err := testRenderer("", srv.URL).Render(context.Background(), "p")
	if !errors.Is(err, core.ErrNoAPIKey) {
		t.Errorf("no key error = %v, want ErrNoAPIKey", err)
	}

	_, _, err = testRenderer("wrong-key", srv.URL).Render(context.Background(), "p")
	if err == nil || core.IsTransient(err) {
		t.Errorf("401 error = %v, want permanent failure", err)
	}
}

type fakeRenderer struct {
	calls int
}

func (f *fakeRenderer) Render(ctx context.Context, prompt string) ([]byte, string, error) {
	f.calls++
	return []byte("img:" + prompt), ".png", nil
}

func TestRenderStage(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewFileSystem(t.TempDir())
	renderer := &fakeRenderer{}
	s := NewRenderStage(renderer, objects)

	item := story.Item{CollectionID: 1, UnitIndex: 2, ItemIndex: 3}
	if _, err := s.Produce(ctx, item, testParent); !errors.Is(err, core.ErrMissingInput) {
		t.Fatalf("Produce() without prompt error = %v", err)
	}
	if renderer.calls != 0 {
		t.Fatal("renderer called without a prompt")
	}

	item.Set(story.FieldRenderedPrompt, "a tower")
	handle, err := s.Produce(ctx, item, testParent)
	if err != nil {
		t.Fatal(err)
	}
	if handle != "chapter_01/images/act_2/scene_03.png" {
		t.Errorf("handle = %q", handle)
	}
	data, err := objects.Read(ctx, handle)
	if err != nil || string(data) != "img:a tower" {
		t.Errorf("stored = %q, %v", data, err)
	}
}

func TestExtensionOf(t *testing.T) {
	for in, want := range map[string]string{
		"https://cdn/x/image.JPEG?sig=1": ".jpeg",
		"https://cdn/x/image.webp":       ".webp",
		"https://cdn/x/image":            ".png",
		"::not a url":                    ".png",
	} {
		if got := extensionOf(in); got != want {
			t.Errorf("extensionOf(%q) = %q, want %q", in, got, want)
		}
	}
}
