package assessment

import (
	"encoding/json"
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func fullRequest() CreateRequest {
	return CreateRequest{
		Fatigue:    intp(2),
		HairLoss:   intp(1),
		Acidity:    intp(0),
		Dizziness:  intp(1),
		MusclePain: intp(2),
		Numbness:   intp(0),

		Vegetarian:   intp(1),
		Smoking:      intp(0),
		Alcohol:      intp(0),
		IronFoodFreq: intp(1),
		DairyFreq:    intp(2),
		JunkFoodFreq: intp(1),
		SunlightMin:  intp(30),

		Hemoglobin: floatp(12.5),
		Ferritin:   floatp(20),
		VitaminB12: floatp(250),
		VitaminD:   floatp(25),
		Calcium:    floatp(9.0),
	}
}

func TestIsCompleteAndTransition(t *testing.T) {
	a, err := NewFromCreateRequest("user-1", fullRequest())

	if err != nil {
		t.Fatalf("NewFromCreateRequest: %v", err)
	}

	if a.Status != StatusDraft {
		t.Fatalf("new assessment status = %q, want draft", a.Status)
	}

	if !a.IsComplete() {
		t.Fatalf("IsComplete() = false with all fields set")
	}

	if !a.MarkCompletedIfReady() {
		t.Fatalf("MarkCompletedIfReady() = false")
	}

	if a.Status != StatusCompleted {
		t.Fatalf("status = %q after completion", a.Status)
	}

	if a.CompletedAt == nil {
		t.Fatalf("CompletedAt not set on completion")
	}
}

func TestCompletedAtSetExactlyOnce(t *testing.T) {
	a, _ := NewFromCreateRequest("user-1", fullRequest())
	a.MarkCompletedIfReady()

	first := *a.CompletedAt

	// re-completing after a round through draft must not move the timestamp
	a.Status = StatusDraft
	time.Sleep(2 * time.Millisecond)
	a.MarkCompletedIfReady()

	if !a.CompletedAt.Equal(first) {
		t.Fatalf("CompletedAt moved from %v to %v", first, *a.CompletedAt)
	}
}

func TestIncompleteStaysDraft(t *testing.T) {
	req := fullRequest()
	req.Ferritin = nil

	a, err := NewFromCreateRequest("user-1", req)

	if err != nil {
		t.Fatalf("NewFromCreateRequest: %v", err)
	}

	if a.IsComplete() {
		t.Fatalf("IsComplete() = true with ferritin missing")
	}

	if a.MarkCompletedIfReady() {
		t.Fatalf("incomplete assessment transitioned to completed")
	}

	if a.Status != StatusDraft {
		t.Fatalf("status = %q, want draft", a.Status)
	}
}

func TestDecimalPlacesRejected(t *testing.T) {
	req := fullRequest()
	req.Hemoglobin = floatp(12.345)

	if _, err := NewFromCreateRequest("user-1", req); err == nil {
		t.Fatalf("want error for 3 decimal places")
	}
}

func TestLabValueJSON(t *testing.T) {
	b, err := json.Marshal(Lab(13.52))

	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(b) != "13.52" {
		t.Errorf("numeric form = %s", b)
	}

	// unrecoverable stored string surfaces as-is
	raw := LabValue{Raw: "aabb:ccdd:eeff"}
	b, _ = json.Marshal(raw)

	if string(b) != `"aabb:ccdd:eeff"` {
		t.Errorf("raw form = %s", b)
	}

	var v LabValue

	if err := json.Unmarshal([]byte("9.1"), &v); err != nil || v.Value != 9.1 {
		t.Errorf("unmarshal number: %v %v", v, err)
	}

	if err := json.Unmarshal([]byte(`"8.25"`), &v); err != nil || v.Value != 8.25 {
		t.Errorf("unmarshal numeric string: %v %v", v, err)
	}
}

func TestMeanSymptomScore(t *testing.T) {
	a, _ := NewFromCreateRequest("user-1", fullRequest())

	// (2+1+0+1+2+0)/6 = 1
	if got := a.MeanSymptomScore(); got != 1 {
		t.Fatalf("MeanSymptomScore() = %v, want 1", got)
	}
}
