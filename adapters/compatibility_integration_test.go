package adapters_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-mastodon/adapters/gocommand"
	"github.com/goliatone/go-mastodon/adapters/gojob"
	"github.com/goliatone/go-mastodon/adapters/gologger"
	mastodoncommand "github.com/goliatone/go-mastodon/command"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
	mastodonquery "github.com/goliatone/go-mastodon/query"
	"github.com/goliatone/go-mastodon/ratelimit"
	"github.com/goliatone/go-mastodon/security"
	sqlstore "github.com/goliatone/go-mastodon/store/sql"
	"github.com/goliatone/go-mastodon/transport"
)

func TestRuntimeCompatibility_QueuedMarkerSaveEndToEnd(t *testing.T) {
	ctx := context.Background()

	var saves atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok_stored" {
			t.Errorf("unexpected authorization %q", got)
		}
		if r.Method != http.MethodPost || r.URL.Path != mastodon.MarkersPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("home[last_read_id]"); got != "103" {
			t.Errorf("unexpected home marker %q", got)
		}
		if _, ok := r.PostForm["notifications[last_read_id]"]; ok {
			t.Errorf("expected notifications key to be omitted")
		}
		saves.Add(1)
		w.Header().Set("X-RateLimit-Limit", "300")
		w.Header().Set("X-RateLimit-Remaining", "299")
		_, _ = io.WriteString(w, `{"home":{"last_read_id":"103","version":4,"updated_at":"2026-10-17T10:00:00.000Z"}}`)
	}))
	defer server.Close()

	dsn := fmt.Sprintf("file:adapters-compat-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	db, err := sqlstore.Open(ctx, sqlstore.OpenConfig{Driver: sqlstore.DriverSQLite, DSN: dsn, Migrate: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(db)
	if err != nil {
		t.Fatalf("repository factory: %v", err)
	}

	secrets, err := security.NewAppKeySecretProviderFromString("compat-key")
	if err != nil {
		t.Fatalf("secret provider: %v", err)
	}
	logger := &compatLogger{}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("mastodon", &compatProvider{logger: logger}, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	service, err := core.NewService(core.DefaultConfig(),
		core.WithTransport(transport.NewRESTAdapter(server.Client())),
		core.WithCredentialStore(factory.CredentialStore()),
		core.WithRateLimitPolicy(ratelimit.NewPolicy(factory.RateLimitStateStore())),
		core.WithSecretProvider(secrets),
		core.WithLogger(logger),
		core.WithRetrySleep(func(context.Context, time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	client, err := mastodon.NewClient(service, mastodon.WithSnapshotStore(factory.MarkerSnapshotStore()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SaveCredential(ctx, "conn_1", mastodon.TokenCredential{
		BaseURL:     server.URL,
		AccessToken: "tok_stored",
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	handlers, err := gocommand.RegisterHandlers(commandAdapter, client, client)
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer handlers.Unsubscribe()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(mastodoncommand.TypeSaveMarkers); !ok {
		t.Fatalf("expected markers command to be mirrored into the go-job queue registry")
	}

	memQueue := &compatQueue{}
	if err := gojob.NewEnqueuerAdapter(memQueue).EnqueueMarkersSave(ctx, gojob.MarkersSaveParams{
		ConnectionID: "conn_1",
		Markers:      mastodon.NewMarkerUpdateRequest("103", ""),
	}); err != nil {
		t.Fatalf("enqueue marker job: %v", err)
	}

	delivery, err := gojob.NewDequeuerAdapter(memQueue, gojob.DefaultRetryPolicy()).Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	handler := gojob.NewMarkersSaveHandler(client, gojob.DefaultRetryPolicy(), gojob.WithHandlerLogger(logger))
	if err := handler.Handle(ctx, delivery, 1); err != nil {
		t.Fatalf("handle marker job: %v", err)
	}
	if !memQueue.acked {
		t.Fatalf("expected marker job ack, nack=%#v", memQueue.nack)
	}
	if saves.Load() != 1 {
		t.Fatalf("expected one marker save upstream, got %d", saves.Load())
	}

	limits, err := factory.RateLimitStateStore().Get(ctx, core.RateLimitKey{
		ProviderID: mastodon.ProviderID,
		ScopeID:    "conn_1",
		BucketKey:  core.RateLimitBucketAPI,
	})
	if err != nil {
		t.Fatalf("load rate limit state: %v", err)
	}
	if limits.Limit != 300 || limits.Remaining != 299 || limits.LastStatus != http.StatusOK {
		t.Fatalf("expected persisted rate limit window, got %#v", limits)
	}

	snapshot, err := gocommand.Query[mastodonquery.MarkerSnapshotMessage, mastodon.MarkersResponse](ctx, mastodonquery.MarkerSnapshotMessage{
		ConnectionID: "conn_1",
	})
	if err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if snapshot.Home == nil || snapshot.Home.LastReadID != "103" || snapshot.Home.Version != 4 {
		t.Fatalf("expected stored home snapshot, got %#v", snapshot)
	}
	if snapshot.Notifications != nil {
		t.Fatalf("expected no notifications snapshot, got %#v", snapshot.Notifications)
	}
}

type compatQueue struct {
	msg   *job.ExecutionMessage
	acked bool
	nack  queue.NackOptions
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.msg = msg
	return nil
}

func (q *compatQueue) Dequeue(context.Context) (queue.Delivery, error) {
	return q, nil
}

func (q *compatQueue) Message() *job.ExecutionMessage {
	return q.msg
}

func (q *compatQueue) Ack(context.Context) error {
	q.acked = true
	return nil
}

func (q *compatQueue) Nack(_ context.Context, opts queue.NackOptions) error {
	q.nack = opts
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
