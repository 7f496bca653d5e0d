package msg

import (
	"encoding/json"
	"testing"
)

// The queued-transfer body is consumed by a retry loop in the player,
// so its key names are load bearing.
func TestDownloadQueuedResponseShape(t *testing.T) {
	body, err := json.Marshal(&DownloadQueuedResponse{
		Error:    "download queue full",
		Position: 2,
		QueueStatus: &DownloadStats{
			ActiveCount:   5,
			WaitingCount:  2,
			MaxConcurrent: 5,
		},
		RetryAfter: 4,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"error", "position", "queueStatus", "retryAfter"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing key %q in %s", key, body)
		}
	}

	var stats map[string]int
	if err := json.Unmarshal(got["queueStatus"], &stats); err != nil {
		t.Fatalf("unmarshal queueStatus: %v", err)
	}
	if stats["activeCount"] != 5 || stats["waitingCount"] != 2 || stats["maxConcurrent"] != 5 {
		t.Fatalf("unexpected queueStatus %v", stats)
	}
}

func TestCheckResponseOmitsZeroEstimates(t *testing.T) {
	body, err := json.Marshal(&CheckResponse{Status: "active", TicketId: "vt-1", RemainingTime: 1200})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["position"]; ok {
		t.Fatalf("active check should not carry a queue position: %s", body)
	}
	if _, ok := got["waitTime"]; ok {
		t.Fatalf("active check should not carry a wait estimate: %s", body)
	}
	if _, ok := got["remainingTime"]; !ok {
		t.Fatalf("active check must carry remainingTime: %s", body)
	}
}
