package annosync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"slideview/internal/model"
)

func TestListSlides(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/slides" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []model.SlideSummary{{ID: id, Name: "liver-biopsy", Width: 80000, Height: 60000, Levels: 8}},
		})
	}))
	defer srv.Close()

	slides, err := NewClient(srv.URL).ListSlides(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 1 || slides[0].ID != id || slides[0].Levels != 8 {
		t.Fatalf("slides=%+v", slides)
	}
}

func TestCreateAnnotationPostsGeometry(t *testing.T) {
	var got model.CreateAnnotationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/annotation-sets/set-1/annotations" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(model.AnnotationResponse{ID: "ann-42", Kind: got.Kind})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).CreateAnnotation(context.Background(), "set-1", model.CreateAnnotationRequest{
		Kind:     model.KindPoint,
		LabelID:  "tumor",
		Geometry: model.PointGeometry{X: 1024.5, Y: 2048},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "ann-42" {
		t.Fatalf("resp=%+v", resp)
	}
	if got.Kind != model.KindPoint || got.LabelID != "tumor" {
		t.Fatalf("server saw %+v", got)
	}
	geo, ok := got.Geometry.(map[string]any)
	if !ok || geo["x_level0"] != 1024.5 {
		t.Fatalf("geometry=%#v", got.Geometry)
	}
}

func TestUpdateAnnotationPatches(t *testing.T) {
	patched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch && r.URL.Path == "/annotations/ann-7" {
			patched = true
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).UpdateAnnotation(context.Background(), "ann-7", model.UpdateAnnotationRequest{
		Geometry: model.EllipseGeometry{CX: 10, CY: 20, RadiusX: 5, RadiusY: 3},
	})
	if err != nil || !patched {
		t.Fatalf("err=%v patched=%v", err, patched)
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "annotation set not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListAnnotations(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "annotation set not found"; !contains(err.Error(), want) {
		t.Fatalf("err=%q missing %q", err, want)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestSyncerCreatesThenRemaps(t *testing.T) {
	var mu sync.Mutex
	creates := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		creates++
		mu.Unlock()
		json.NewEncoder(w).Encode(model.AnnotationResponse{ID: "srv-1"})
	}))
	defer srv.Close()

	s := NewSyncer(NewClient(srv.URL), "set-1")
	var mappedLocal, mappedServer string
	s.OnCreated = func(localKey, serverID string) { mappedLocal, mappedServer = localKey, serverID }

	s.QueueCreate("draft-a", model.CreateAnnotationRequest{Kind: model.KindPoint, Geometry: model.PointGeometry{X: 1, Y: 2}})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if creates != 1 || mappedLocal != "draft-a" || mappedServer != "srv-1" {
		t.Fatalf("creates=%d mapping=%q->%q", creates, mappedLocal, mappedServer)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending=%d after successful flush", s.Pending())
	}
}

func TestSyncerKeepsFailedEntries(t *testing.T) {
	var mu sync.Mutex
	fail := true
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		shouldFail := fail
		mu.Unlock()
		if shouldFail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSyncer(NewClient(srv.URL), "set-1")
	s.QueueUpdate("ann-9", model.UpdateAnnotationRequest{Geometry: model.PointGeometry{X: 3, Y: 4}})

	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("flush should report the failure")
	}
	if s.Pending() != 1 {
		t.Fatalf("pending=%d want 1 (kept for retry)", s.Pending())
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 0 || calls != 2 {
		t.Fatalf("pending=%d calls=%d", s.Pending(), calls)
	}
}

func TestSyncerLastWritePerKeyWins(t *testing.T) {
	var got model.UpdateAnnotationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSyncer(NewClient(srv.URL), "set-1")
	s.QueueUpdate("ann-3", model.UpdateAnnotationRequest{LabelID: "old"})
	s.QueueUpdate("ann-3", model.UpdateAnnotationRequest{LabelID: "new"})
	if s.Pending() != 1 {
		t.Fatalf("pending=%d want 1 (coalesced)", s.Pending())
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got.LabelID != "new" {
		t.Fatalf("server saw label %q", got.LabelID)
	}
}
