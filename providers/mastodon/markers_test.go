package mastodon

import (
	"encoding/json"
	"testing"
)

func TestMarkersResponseEmptyIsValid(t *testing.T) {
	res := MarkersResponse{}
	if err := json.Unmarshal([]byte(`{}`), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.IsEmpty() {
		t.Fatalf("expected no markers, got %#v", res)
	}
	if _, ok := res.Get(TimelineHome); ok {
		t.Fatalf("expected absent home marker")
	}
}

func TestMarkersResponseDecodesServerJSON(t *testing.T) {
	body := `{"home":{"last_read_id":"103194548672408537","version":462,"updated_at":"2019-11-24T19:39:39.337Z"}}`
	res := MarkersResponse{}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	home, ok := res.Get(TimelineHome)
	if !ok || home.LastReadID != "103194548672408537" || home.Version != 462 || home.UpdatedAt != "2019-11-24T19:39:39.337Z" {
		t.Fatalf("unexpected home marker %#v", home)
	}
	if res.Notifications != nil {
		t.Fatalf("expected notifications absent")
	}
}

func TestEncodePayloadHomeOnly(t *testing.T) {
	payload := EncodePayload(MarkerUpdateRequest{Home: &TimelineMarkerUpdate{LastReadID: "123"}})
	if len(payload) != 1 || payload["home[last_read_id]"] != "123" {
		t.Fatalf("expected exactly home[last_read_id]=123, got %#v", payload)
	}
}

func TestEncodePayloadNotificationsOnly(t *testing.T) {
	payload := EncodePayload(MarkerUpdateRequest{Notifications: &TimelineMarkerUpdate{LastReadID: "9"}})
	if _, ok := payload["home[last_read_id]"]; ok {
		t.Fatalf("expected no home key, got %#v", payload)
	}
	if payload["notifications[last_read_id]"] != "9" {
		t.Fatalf("expected notifications key, got %#v", payload)
	}
}

func TestEncodePayloadSkipsEmptyIDs(t *testing.T) {
	payload := EncodePayload(MarkerUpdateRequest{Home: &TimelineMarkerUpdate{}})
	if len(payload) != 0 {
		t.Fatalf("expected empty payload, got %#v", payload)
	}
	if !(MarkerUpdateRequest{Home: &TimelineMarkerUpdate{}}).IsEmpty() {
		t.Fatalf("expected request with empty id to be empty")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	req := NewMarkerUpdateRequest("111", "222")
	decoded, err := DecodePayload(EncodePayload(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Home == nil || decoded.Home.LastReadID != "111" {
		t.Fatalf("expected home id recovered, got %#v", decoded.Home)
	}
	if decoded.Notifications == nil || decoded.Notifications.LastReadID != "222" {
		t.Fatalf("expected notifications id recovered, got %#v", decoded.Notifications)
	}
}

func TestDecodePayloadRejectsUnknownKeys(t *testing.T) {
	_, err := DecodePayload(MarkerUpdatePayload{"conversations[last_read_id]": "1"})
	if err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestPayloadValues(t *testing.T) {
	values := EncodePayload(NewMarkerUpdateRequest("1", "")).Values()
	if values.Get("home[last_read_id]") != "1" || len(values) != 1 {
		t.Fatalf("unexpected form values %#v", values)
	}
	if encoded := values.Encode(); encoded != "home%5Blast_read_id%5D=1" {
		t.Fatalf("unexpected form encoding %q", encoded)
	}
}

func TestParseTimeline(t *testing.T) {
	if timeline, err := ParseTimeline(" Home "); err != nil || timeline != TimelineHome {
		t.Fatalf("expected home, got %q %v", timeline, err)
	}
	if _, err := ParseTimeline("public"); err == nil {
		t.Fatalf("expected public to be rejected")
	}
}

func TestMarkersQuery(t *testing.T) {
	query, err := MarkersQuery()
	if err != nil {
		t.Fatalf("markers query: %v", err)
	}
	if got := query["timeline[]"]; len(got) != 2 || got[0] != "home" || got[1] != "notifications" {
		t.Fatalf("expected both timelines by default, got %#v", got)
	}
	query, err = MarkersQuery(TimelineNotifications, TimelineNotifications)
	if err != nil {
		t.Fatalf("markers query: %v", err)
	}
	if got := query["timeline[]"]; len(got) != 1 || got[0] != "notifications" {
		t.Fatalf("expected deduplicated timelines, got %#v", got)
	}
	if _, err := MarkersQuery(Timeline("public")); err == nil {
		t.Fatalf("expected invalid timeline error")
	}
}
