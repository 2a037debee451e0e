package mastodon

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	MarkersPath = "/api/v1/markers"

	timelineQueryKey = "timeline[]"
)

// Timeline names a marker-tracked timeline. The set is closed.
type Timeline string

const (
	TimelineHome          Timeline = "home"
	TimelineNotifications Timeline = "notifications"
)

// Timelines lists every known timeline in wire order.
func Timelines() []Timeline {
	return []Timeline{TimelineHome, TimelineNotifications}
}

func ParseTimeline(value string) (Timeline, error) {
	switch Timeline(strings.ToLower(strings.TrimSpace(value))) {
	case TimelineHome:
		return TimelineHome, nil
	case TimelineNotifications:
		return TimelineNotifications, nil
	default:
		return "", fmt.Errorf("mastodon: invalid timeline %q", value)
	}
}

func (t Timeline) lastReadIDKey() string {
	return string(t) + "[last_read_id]"
}

// Marker is the server's read position for one timeline. It mirrors the
// response JSON and is never built or checked client side.
type Marker struct {
	LastReadID string `json:"last_read_id"`
	Version    int    `json:"version"`
	UpdatedAt  string `json:"updated_at"`
}

// MarkersResponse carries the markers the server returned. A nil field means
// no marker is set for that timeline; an empty response is valid.
type MarkersResponse struct {
	Home          *Marker `json:"home,omitempty"`
	Notifications *Marker `json:"notifications,omitempty"`
}

func (r MarkersResponse) Get(timeline Timeline) (*Marker, bool) {
	var marker *Marker
	switch timeline {
	case TimelineHome:
		marker = r.Home
	case TimelineNotifications:
		marker = r.Notifications
	}
	return marker, marker != nil
}

func (r MarkersResponse) IsEmpty() bool {
	return r.Home == nil && r.Notifications == nil
}

type TimelineMarkerUpdate struct {
	LastReadID string `json:"last_read_id" mapstructure:"last_read_id"`
}

// MarkerUpdateRequest is the nested form of a marker save. Each timeline is
// optional.
type MarkerUpdateRequest struct {
	Home          *TimelineMarkerUpdate `json:"home,omitempty" mapstructure:"home"`
	Notifications *TimelineMarkerUpdate `json:"notifications,omitempty" mapstructure:"notifications"`
}

// NewMarkerUpdateRequest builds a request from last-read ids; an empty id
// leaves that timeline unset.
func NewMarkerUpdateRequest(homeLastReadID, notificationsLastReadID string) MarkerUpdateRequest {
	req := MarkerUpdateRequest{}
	if id := strings.TrimSpace(homeLastReadID); id != "" {
		req.Home = &TimelineMarkerUpdate{LastReadID: id}
	}
	if id := strings.TrimSpace(notificationsLastReadID); id != "" {
		req.Notifications = &TimelineMarkerUpdate{LastReadID: id}
	}
	return req
}

func (r MarkerUpdateRequest) update(timeline Timeline) *TimelineMarkerUpdate {
	switch timeline {
	case TimelineHome:
		return r.Home
	case TimelineNotifications:
		return r.Notifications
	default:
		return nil
	}
}

// IsEmpty reports whether the request would produce an empty payload.
func (r MarkerUpdateRequest) IsEmpty() bool {
	return len(EncodePayload(r)) == 0
}

// MarkerUpdatePayload is the flat wire form, keyed by "home[last_read_id]"
// and "notifications[last_read_id]".
type MarkerUpdatePayload map[string]string

// EncodePayload flattens req. A timeline contributes its key only when it is
// set with a non-empty last-read id.
func EncodePayload(req MarkerUpdateRequest) MarkerUpdatePayload {
	payload := MarkerUpdatePayload{}
	for _, timeline := range Timelines() {
		update := req.update(timeline)
		if update == nil || update.LastReadID == "" {
			continue
		}
		payload[timeline.lastReadIDKey()] = update.LastReadID
	}
	return payload
}

// DecodePayload is the inverse of EncodePayload. Keys other than the two
// timeline keys are rejected.
func DecodePayload(payload MarkerUpdatePayload) (MarkerUpdateRequest, error) {
	req := MarkerUpdateRequest{}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := payload[key]
		switch key {
		case TimelineHome.lastReadIDKey():
			if value != "" {
				req.Home = &TimelineMarkerUpdate{LastReadID: value}
			}
		case TimelineNotifications.lastReadIDKey():
			if value != "" {
				req.Notifications = &TimelineMarkerUpdate{LastReadID: value}
			}
		default:
			return MarkerUpdateRequest{}, fmt.Errorf("mastodon: invalid marker payload key %q", key)
		}
	}
	return req, nil
}

// Values returns the payload as form values.
func (p MarkerUpdatePayload) Values() url.Values {
	values := url.Values{}
	for key, value := range p {
		values.Set(key, value)
	}
	return values
}

// MarkersQuery builds the timeline[] query for a markers read. No timelines
// means both.
func MarkersQuery(timelines ...Timeline) (url.Values, error) {
	if len(timelines) == 0 {
		timelines = Timelines()
	}
	query := url.Values{}
	seen := map[Timeline]struct{}{}
	for _, timeline := range timelines {
		parsed, err := ParseTimeline(string(timeline))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[parsed]; ok {
			continue
		}
		seen[parsed] = struct{}{}
		query.Add(timelineQueryKey, string(parsed))
	}
	return query, nil
}
