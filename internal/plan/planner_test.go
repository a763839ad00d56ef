package plan

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"reelforge/internal/beatmap"
	"reelforge/internal/config"
	"reelforge/internal/media"
	"reelforge/pkg/content"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testBundle(t *testing.T) media.Bundle {
	t.Helper()
	dir := t.TempDir()
	bundle := media.Bundle{Images: make(map[string]string)}
	for _, slot := range []string{content.SlotBefore, content.SlotProcess, content.SlotAfter} {
		path := filepath.Join(dir, slot+".png")
		writePNG(t, path, 640, 960)
		bundle.Images[slot] = path
	}
	return bundle
}

func testSummary() content.Summary {
	return content.Summary{
		Title:        "Midnight Noodles",
		Steps:        []string{"Boil", "Season", "Slurp"},
		Ingredients:  []string{"noodles", "scallions", "chili oil"},
		TotalMinutes: 12,
		Servings:     2,
		CallToAction: "Follow for more",
	}
}

func testBeats(duration float64) beatmap.BeatMap {
	var cues []float64
	for t := 0.0; t <= duration; t += 0.5 {
		cues = append(cues, t)
	}
	return beatmap.BeatMap{BPM: 120, CueTimes: cues}
}

func buildTestPlan(t *testing.T, seed int64) RenderPlan {
	t.Helper()
	p := Planner{Config: config.Default()}
	rp, err := p.Build(content.Reference(), testSummary(), testBundle(t), testBeats(15), seed)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rp
}

func TestBuildTilesDuration(t *testing.T) {
	rp := buildTestPlan(t, 1)

	if rp.OutputDuration != 15 {
		t.Fatalf("output duration = %v, want 15", rp.OutputDuration)
	}
	if len(rp.Items) != 5 {
		t.Fatalf("items = %d, want one per phase", len(rp.Items))
	}
	if rp.Items[0].Start != 0 {
		t.Fatalf("first item starts at %v, want 0", rp.Items[0].Start)
	}
	for i := 1; i < len(rp.Items); i++ {
		gap := rp.Items[i].Start - rp.Items[i-1].End()
		if math.Abs(gap) > 1e-9 {
			t.Fatalf("gap of %v between items %d and %d", gap, i-1, i)
		}
	}
	last := rp.Items[len(rp.Items)-1]
	if math.Abs(last.End()-15) > 1e-9 {
		t.Fatalf("last item ends at %v, want 15", last.End())
	}

	var total float64
	for _, item := range rp.Items {
		total += item.Duration
	}
	if math.Abs(total-15) > 1e-9 {
		t.Fatalf("durations sum to %v, want 15", total)
	}
}

func TestBuildDeterministicBySeed(t *testing.T) {
	a := buildTestPlan(t, 42)
	b := buildTestPlan(t, 42)

	for i := range a.Items {
		if a.Items[i].Motion != b.Items[i].Motion {
			t.Fatalf("item %d motion differs for identical seed", i)
		}
	}

	c := buildTestPlan(t, 43)
	same := true
	for i := range a.Items {
		if a.Items[i].Kind == KindStill && a.Items[i].Motion != c.Items[i].Motion {
			same = false
		}
	}
	if same {
		t.Fatal("different seeds should synthesize different motion")
	}
}

func TestBuildOverlaysStayInsideOutput(t *testing.T) {
	rp := buildTestPlan(t, 7)

	if len(rp.Overlays) == 0 {
		t.Fatal("expected overlays")
	}
	for i, o := range rp.Overlays {
		if o.Start < 0 || o.End() > rp.OutputDuration+1e-9 {
			t.Fatalf("overlay %d window [%v, %v] outside output", i, o.Start, o.End())
		}
		if o.Duration <= 0 {
			t.Fatalf("overlay %d has non-positive duration", i)
		}
	}
}

func TestBuildOverlayOpacityEndsAtZero(t *testing.T) {
	rp := buildTestPlan(t, 7)

	for i, o := range rp.Overlays {
		track := o.Layer.Opacity
		if len(track) == 0 {
			t.Fatalf("overlay %d has no opacity track", i)
		}
		final := track[len(track)-1]
		if final.Value != 0 {
			t.Fatalf("overlay %d opacity ends at %v, want 0", i, final.Value)
		}
		if final.Time >= o.Duration {
			t.Fatalf("overlay %d fade-out ends at %v, not inside window %v", i, final.Time, o.Duration)
		}
	}
}

func TestBuildPhraseSidesAlternate(t *testing.T) {
	rp := buildTestPlan(t, 7)

	var sides []string
	for _, o := range rp.Overlays {
		if o.Layer.Kind == LayerPhrase {
			sides = append(sides, o.Layer.XAnchor)
		}
	}
	if len(sides) < 2 {
		t.Fatalf("expected at least two phrases, got %d", len(sides))
	}
	for i := 1; i < len(sides); i++ {
		if sides[i] == sides[i-1] {
			t.Fatalf("consecutive phrases share side %q", sides[i])
		}
	}
}

func TestBuildChipsStagger(t *testing.T) {
	rp := buildTestPlan(t, 7)
	cfg := config.Default()

	var chips []Overlay
	for _, o := range rp.Overlays {
		if o.Layer.Kind == LayerChip {
			chips = append(chips, o)
		}
	}
	if len(chips) != 3 {
		t.Fatalf("chips = %d, want one per ingredient", len(chips))
	}
	for i := 1; i < len(chips); i++ {
		gap := chips[i].Start - chips[i-1].Start
		if math.Abs(gap-cfg.Timing.StaggerSec) > 1e-9 {
			t.Fatalf("chip stagger %v, want %v", gap, cfg.Timing.StaggerSec)
		}
	}
	// Staggered starts share one common end.
	for i := 1; i < len(chips); i++ {
		if math.Abs(chips[i].End()-chips[0].End()) > 1e-9 {
			t.Fatalf("chip %d ends at %v, want shared end %v", i, chips[i].End(), chips[0].End())
		}
	}
}

func TestBuildBindsVelocityPeriodToBeats(t *testing.T) {
	rp := buildTestPlan(t, 7)

	found := false
	for _, item := range rp.Items {
		for _, f := range item.Filters {
			if f.Name == "velocity" {
				found = true
				if f.Params["period"] != 0.5 {
					t.Fatalf("velocity period = %v, want beat interval 0.5", f.Params["period"])
				}
			}
		}
	}
	if !found {
		t.Fatal("expected a velocity filter from the reference template")
	}
}

func TestBuildAddsFlashAtDropMoments(t *testing.T) {
	beats := testBeats(15)
	beats.DropMoments = []float64{5, 10}

	p := Planner{Config: config.Default()}
	rp, err := p.Build(content.Reference(), testSummary(), testBundle(t), beats, 7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var flashes int
	for _, item := range rp.Items {
		for _, f := range item.Filters {
			if f.Name == "flash" {
				flashes++
				at := f.Params["at"]
				absolute := item.Start + at
				if math.Abs(absolute-5) > 1e-9 && math.Abs(absolute-10) > 1e-9 {
					t.Fatalf("flash at absolute %v, want a drop moment", absolute)
				}
			}
		}
	}
	if flashes != 2 {
		t.Fatalf("flashes = %d, want one per drop", flashes)
	}
}

func TestBuildRejectsMissingMedia(t *testing.T) {
	bundle := testBundle(t)
	delete(bundle.Images, content.SlotAfter)

	p := Planner{Config: config.Default()}
	_, err := p.Build(content.Reference(), testSummary(), bundle, testBeats(15), 1)
	if err == nil {
		t.Fatal("expected error for missing after image")
	}
	if !strings.Contains(err.Error(), "after") {
		t.Fatalf("error should name the missing slot, got: %v", err)
	}
}

func TestBuildRejectsUndecodableImage(t *testing.T) {
	bundle := testBundle(t)
	bad := filepath.Join(t.TempDir(), "before.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	bundle.Images[content.SlotBefore] = bad

	p := Planner{Config: config.Default()}
	if _, err := p.Build(content.Reference(), testSummary(), bundle, testBeats(15), 1); err == nil {
		t.Fatal("expected error for undecodable image")
	}
}

func TestBuildRejectsNonPositiveDuration(t *testing.T) {
	cfg := config.Default()
	cfg.Video.MaxDurationSec = 0

	p := Planner{Config: cfg}
	if _, err := p.Build(content.Reference(), testSummary(), testBundle(t), testBeats(15), 1); err == nil {
		t.Fatal("expected error for non-positive duration")
	}
}

func TestOutputDurationCapped(t *testing.T) {
	cfg := config.Default()
	cfg.Video.MaxDurationSec = 30
	if got := OutputDuration(cfg); got != 15 {
		t.Fatalf("OutputDuration = %v, want hard cap 15", got)
	}

	cfg.Video.MaxDurationSec = 12
	if got := OutputDuration(cfg); got != 12 {
		t.Fatalf("OutputDuration = %v, want 12", got)
	}
}

func TestTrackValueAt(t *testing.T) {
	track := Track{
		{Time: 0, Value: 0},
		{Time: 1, Value: 1},
		{Time: 3, Value: 1},
		{Time: 4, Value: 0},
	}

	cases := []struct{ t, want float64 }{
		{-1, 0},
		{0.5, 0.5},
		{2, 1},
		{3.5, 0.5},
		{9, 0},
	}
	for _, tc := range cases {
		if got := track.ValueAt(tc.t); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestPlanValidateCatchesOverlap(t *testing.T) {
	rp := buildTestPlan(t, 1)
	rp.Items[1].Start -= 0.5

	if err := rp.Validate(1.0 / 30.0); err == nil {
		t.Fatal("expected overlap to fail validation")
	}
}

func TestPlanValidateCatchesOverlayOutsideOutput(t *testing.T) {
	rp := buildTestPlan(t, 1)
	rp.Overlays[0].Start = 14.9
	rp.Overlays[0].Duration = 2

	if err := rp.Validate(1.0 / 30.0); err == nil {
		t.Fatal("expected out-of-range overlay to fail validation")
	}
}

func TestSynthesizeMotionBounded(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		for phase := 0; phase < 5; phase++ {
			m := synthesizeMotion(seed, phase)
			if m.ZoomStart < 1.0 || m.ZoomStart > 1.04 {
				t.Fatalf("zoom start %v out of bounds", m.ZoomStart)
			}
			if m.ZoomEnd < 1.08 || m.ZoomEnd > 1.18 {
				t.Fatalf("zoom end %v out of bounds", m.ZoomEnd)
			}
			if math.Abs(m.PanX) > 0.04 || math.Abs(m.PanY) > 0.04 {
				t.Fatalf("pan (%v, %v) out of bounds", m.PanX, m.PanY)
			}
		}
	}
	if !reflect.DeepEqual(synthesizeMotion(9, 2), synthesizeMotion(9, 2)) {
		t.Fatal("motion must be deterministic")
	}
}
