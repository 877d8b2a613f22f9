package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"slideview/internal/model"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDocsListsTopics(t *testing.T) {
	out, err := runCmd(t, "docs")
	if err != nil {
		t.Fatal(err)
	}
	for _, topic := range []string{"keys", "protocol", "annotations"} {
		if !strings.Contains(out, topic) {
			t.Fatalf("output missing topic %q:\n%s", topic, out)
		}
	}
}

func TestDocsUnknownTopicFails(t *testing.T) {
	_, err := runCmd(t, "docs", "nope")
	if err == nil || !strings.Contains(err.Error(), "unknown docs topic") {
		t.Fatalf("err=%v", err)
	}
}

func TestSlidesListPrintsTable(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []model.SlideSummary{{ID: id, Name: "lung-wedge", Width: 90000, Height: 70000, Levels: 9}},
		})
	}))
	defer srv.Close()

	out, err := runCmd(t, "slides", "list", "--api", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "lung-wedge") || !strings.Contains(out, "90000x70000") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestAnnotationsListRequiresSet(t *testing.T) {
	_, err := runCmd(t, "annotations", "list")
	if err == nil || !strings.Contains(err.Error(), "annotation set") {
		t.Fatalf("err=%v", err)
	}
}

func TestAnnotationsListSummarizesGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.ListAnnotationsResponse{Items: []model.Annotation{
			{ID: "a1", Kind: model.KindPoint, Point: &model.PointGeometry{X: 10, Y: 20}},
			{ID: "a2", Kind: model.KindMask, Mask: &model.MaskGeometry{X0: 512, Y0: 1024, Width: 512, Height: 512}},
		}})
	}))
	defer srv.Close()

	out, err := runCmd(t, "annotations", "list", "--api", srv.URL, "--set", "set-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "(10, 20)") || !strings.Contains(out, "tile (512, 1024)") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestAnnotationsDelete(t *testing.T) {
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/annotations/"))
		}
	}))
	defer srv.Close()

	out, err := runCmd(t, "annotations", "delete", "a1", "a2", "--api", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 || deleted[0] != "a1" || deleted[1] != "a2" {
		t.Fatalf("deleted=%v", deleted)
	}
	if !strings.Contains(out, "deleted a1") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestViewRejectsBadSlideID(t *testing.T) {
	_, err := runCmd(t, "view", "not-a-uuid")
	if err == nil || !strings.Contains(err.Error(), "invalid slide id") {
		t.Fatalf("err=%v", err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("SLIDEVIEW_API", "http://example.invalid:1")
	t.Setenv("SLIDEVIEW_DPI", "144")

	cmd := NewRootCmd()
	if got := cmd.PersistentFlags().Lookup("api").DefValue; got != "http://example.invalid:1" {
		t.Fatalf("api default=%q", got)
	}
	if got := cmd.PersistentFlags().Lookup("dpi").DefValue; got != "144" {
		t.Fatalf("dpi default=%q", got)
	}
}
