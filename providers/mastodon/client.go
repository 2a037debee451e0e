package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

const (
	OperationVerifyCredentials = "verify_credentials"
	OperationVerifyApp         = "verify_app_credentials"
	OperationGetMarkers        = "get_markers"
	OperationSaveMarkers       = "save_markers"
)

// ConnectionRef selects the credential for a call: either a stored
// connection or an inline token credential.
type ConnectionRef struct {
	ConnectionID string
	Credential   *TokenCredential
}

func (r ConnectionRef) String() string {
	if id := strings.TrimSpace(r.ConnectionID); id != "" {
		return id
	}
	if r.Credential != nil {
		return r.Credential.BaseURL
	}
	return ""
}

type ClientOption func(*Client)

func WithSnapshotStore(store MarkerSnapshotStore) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.snapshots = store
		}
	}
}

// WithCachedMarkerReads lets GetMarkers answer from the service response
// cache. Reads bypass the cache by default since markers move often.
func WithCachedMarkerReads() ClientOption {
	return func(c *Client) {
		c.cachedMarkerReads = true
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client runs Mastodon calls through core.Service so they share signing,
// retries, rate limiting and observability.
type Client struct {
	service   *core.Service
	snapshots MarkerSnapshotStore
	now       func() time.Time

	cachedMarkerReads bool
}

// NewClient registers the Mastodon provider on service when missing.
func NewClient(service *core.Service, opts ...ClientOption) (*Client, error) {
	if service == nil {
		return nil, fmt.Errorf("mastodon: service is required")
	}
	if _, ok := service.Registry().Get(ProviderID); !ok {
		if err := service.RegisterProvider(New()); err != nil {
			return nil, err
		}
	}
	client := &Client{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client, nil
}

func (c *Client) Service() *core.Service {
	if c == nil {
		return nil
	}
	return c.service
}

func (c *Client) Snapshots() MarkerSnapshotStore {
	if c == nil {
		return nil
	}
	return c.snapshots
}

// SaveCredential validates cred and stores it encrypted for connectionID.
func (c *Client) SaveCredential(ctx context.Context, connectionID string, cred TokenCredential) (core.Credential, error) {
	cred = cred.WithDefaults()
	if err := cred.Validate(); err != nil {
		return core.Credential{}, err
	}
	return c.service.SaveCredential(ctx, connectionID, ProviderID, cred.ActiveCredential(connectionID))
}

func (c *Client) RevokeCredential(ctx context.Context, connectionID string, reason string) error {
	return c.service.RevokeCredential(ctx, connectionID, reason)
}

// VerifyCredentials runs the credential test request once. It never retries.
func (c *Client) VerifyCredentials(ctx context.Context, ref ConnectionRef) (Account, error) {
	req, baseURL, err := c.newRequest(ctx, ref, OperationVerifyCredentials)
	if err != nil {
		return Account{}, err
	}
	req.Method = http.MethodGet
	req.Path = VerifyCredentialsPath
	req.OneShot = true
	req.BypassCache = true

	result, err := c.service.Execute(ctx, req)
	if err != nil {
		return Account{}, classifyVerifyError(err, baseURL)
	}
	account := Account{}
	if err := decodeResponse(result.Response, &account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// VerifyAppCredentials checks an OAuth2 token and reports the scopes the
// instance granted. Like VerifyCredentials it runs once.
func (c *Client) VerifyAppCredentials(ctx context.Context, ref ConnectionRef) (Application, error) {
	req, baseURL, err := c.newRequest(ctx, ref, OperationVerifyApp)
	if err != nil {
		return Application{}, err
	}
	req.Method = http.MethodGet
	req.Path = AppVerifyPath
	req.OneShot = true
	req.BypassCache = true

	result, err := c.service.Execute(ctx, req)
	if err != nil {
		return Application{}, classifyVerifyError(err, baseURL)
	}
	app := Application{}
	if err := decodeResponse(result.Response, &app); err != nil {
		return Application{}, err
	}
	return app, nil
}

// GetMarkers reads the markers for timelines, both when none are given.
func (c *Client) GetMarkers(ctx context.Context, ref ConnectionRef, timelines ...Timeline) (MarkersResponse, error) {
	query, err := MarkersQuery(timelines...)
	if err != nil {
		return MarkersResponse{}, badInput(err)
	}
	req, _, err := c.newRequest(ctx, ref, OperationGetMarkers)
	if err != nil {
		return MarkersResponse{}, err
	}
	req.Method = http.MethodGet
	req.Path = MarkersPath
	req.Query = query
	req.BypassCache = !c.cachedMarkerReads

	result, err := c.service.Execute(ctx, req)
	if err != nil {
		return MarkersResponse{}, err
	}
	res := MarkersResponse{}
	if err := decodeResponse(result.Response, &res); err != nil {
		return MarkersResponse{}, err
	}
	c.recordSnapshots(ctx, ref, res)
	return res, nil
}

// SaveMarkers posts the flattened update. An update with no timeline set is
// rejected before any request is made.
func (c *Client) SaveMarkers(ctx context.Context, ref ConnectionRef, update MarkerUpdateRequest) (MarkersResponse, error) {
	payload := EncodePayload(update)
	if len(payload) == 0 {
		return MarkersResponse{}, badInput(fmt.Errorf("mastodon: marker update requires at least one timeline last_read_id"))
	}
	req, _, err := c.newRequest(ctx, ref, OperationSaveMarkers)
	if err != nil {
		return MarkersResponse{}, err
	}
	req.Method = http.MethodPost
	req.Path = MarkersPath
	req.Form = payload.Values()
	if c.cachedMarkerReads {
		req.Invalidates = markersReadTargets()
	}

	result, err := c.service.Execute(ctx, req)
	if err != nil {
		return MarkersResponse{}, err
	}
	res := MarkersResponse{}
	if err := decodeResponse(result.Response, &res); err != nil {
		return MarkersResponse{}, err
	}
	c.recordSnapshots(ctx, ref, res)
	return res, nil
}

// markersReadTargets lists every query GetMarkers can send.
func markersReadTargets() []core.CacheTarget {
	variants := [][]Timeline{
		{TimelineHome},
		{TimelineNotifications},
		{TimelineHome, TimelineNotifications},
		{TimelineNotifications, TimelineHome},
	}
	targets := make([]core.CacheTarget, 0, len(variants))
	for _, timelines := range variants {
		query, err := MarkersQuery(timelines...)
		if err != nil {
			continue
		}
		targets = append(targets, core.CacheTarget{Path: MarkersPath, Query: query})
	}
	return targets
}

// LatestSnapshot returns the last markers recorded for a stored connection.
func (c *Client) LatestSnapshot(ctx context.Context, connectionID string) (MarkersResponse, error) {
	if c.snapshots == nil {
		return MarkersResponse{}, fmt.Errorf("mastodon: marker snapshot store is not configured")
	}
	snapshots, err := c.snapshots.Latest(ctx, connectionID)
	if err != nil {
		return MarkersResponse{}, err
	}
	return ResponseFromSnapshots(snapshots), nil
}

func (c *Client) newRequest(_ context.Context, ref ConnectionRef, operation string) (core.ExecuteRequest, string, error) {
	if c == nil || c.service == nil {
		return core.ExecuteRequest{}, "", fmt.Errorf("mastodon: client is not configured")
	}
	req := core.ExecuteRequest{
		ProviderID:   ProviderID,
		ConnectionID: strings.TrimSpace(ref.ConnectionID),
		Operation:    operation,
	}
	if ref.Credential == nil {
		if req.ConnectionID == "" {
			return core.ExecuteRequest{}, "", badInput(fmt.Errorf("mastodon: connection id or credential is required"))
		}
		return req, "", nil
	}
	cred := ref.Credential.WithDefaults()
	if err := cred.Validate(); err != nil {
		return core.ExecuteRequest{}, "", err
	}
	active := cred.ActiveCredential(req.ConnectionID)
	req.Credential = &active
	return req, cred.BaseURL, nil
}

func (c *Client) recordSnapshots(ctx context.Context, ref ConnectionRef, res MarkersResponse) {
	connectionID := strings.TrimSpace(ref.ConnectionID)
	if c.snapshots == nil || connectionID == "" || res.IsEmpty() {
		return
	}
	snapshots := SnapshotsFromResponse(connectionID, res, c.now())
	if err := c.snapshots.Record(ctx, snapshots); err != nil {
		c.service.Logger().Warn("marker snapshot record failed",
			"connection_id", connectionID,
			"error", err,
		)
	}
}

func decodeResponse(res core.TransportResponse, target any) error {
	if len(strings.TrimSpace(string(res.Body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, target); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "mastodon: decode response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ServiceErrorExternalFailure)
	}
	return nil
}

func badInput(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}
