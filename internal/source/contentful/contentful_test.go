package contentful

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/store"
	"github.com/roach88/notacms/internal/syncer"
	"github.com/roach88/notacms/internal/testutil"
)

const page1 = `{
  "items": [
    {"sys": {"id": "a1", "type": "Entry", "revision": 3, "createdAt": "2024-01-01T00:00:00Z",
             "contentType": {"sys": {"type": "Link", "linkType": "ContentType", "id": "author"}}},
     "fields": {"name": {"en-US": "Jo", "de-DE": "Johanna"}}},
    {"sys": {"id": "p1", "type": "Entry",
             "contentType": {"sys": {"type": "Link", "linkType": "ContentType", "id": "article"}}},
     "fields": {
       "title": {"en-US": "Hi"},
       "author": {"en-US": {"sys": {"type": "Link", "linkType": "Entry", "id": "a1"}}},
       "hero": {"en-US": {"sys": {"type": "Link", "linkType": "Asset", "id": "img1"}}},
       "body": {"en-US": {"nodeType": "document", "content": [
         {"nodeType": "embedded-entry-block", "data": {"target": {"sys": {"type": "Link", "linkType": "Entry", "id": "a1"}}}}
       ]}}
     }}
  ],
  "nextPageUrl": "%s/page2"
}`

const page2 = `{
  "items": [
    {"sys": {"id": "img1", "type": "Asset"}, "fields": {"title": {"en-US": "Hero"}}},
    {"sys": {"id": "gone", "type": "DeletedEntry"}},
    {"sys": {"id": "p2", "type": "Entry",
             "contentType": {"sys": {"type": "Link", "linkType": "ContentType", "id": "article"}}},
     "fields": {
       "title": {"en-US": "Again"},
       "related": {"en-US": [
         {"sys": {"type": "Link", "linkType": "Entry", "id": "p1"}},
         {"sys": {"type": "Link", "linkType": "Entry", "id": "zz"}}
       ]}
     }}
  ],
  "nextSyncUrl": "%s/next"
}`

func newSpaceServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/spaces/space1/environments/master/sync":
			assert.Equal(t, "true", r.URL.Query().Get("initial"))
			fmt.Fprintf(w, page1, srv.URL)
		case "/page2":
			fmt.Fprintf(w, page2, srv.URL)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestSource(baseURL string, assets bool) *Source {
	return New(Options{
		Space:       "space1",
		AccessToken: "token",
		BaseURL:     baseURL,
		SyncAssets:  assets,
		RateLimit:   1000,
		MaxRetries:  2,
	})
}

func TestConnect_MissingCredentials(t *testing.T) {
	for _, opts := range []Options{{}, {Space: "s"}, {AccessToken: "t"}} {
		err := New(opts).Connect(context.Background())
		require.Error(t, err)
		assert.True(t, syncer.IsConfigError(err))
	}
}

func TestRecords_GroupsByContentType(t *testing.T) {
	srv, requests := newSpaceServer(t)
	src := newTestSource(srv.URL, false)
	require.NoError(t, src.Connect(context.Background()))

	set, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, []string{"article", "author"}, set.Types())
	assert.Len(t, set["article"], 2)

	a1, ok := set.Find(record.Key{Type: "author", ContentID: "a1"})
	require.True(t, ok)
	assert.Equal(t, "Jo", a1.Get("name"))
	assert.Equal(t, int64(3), a1.Get("revision"))
	assert.Equal(t, "2024-01-01T00:00:00Z", a1.Get("createdAt"))
}

func TestRecords_Locale(t *testing.T) {
	srv, _ := newSpaceServer(t)
	src := New(Options{Space: "space1", AccessToken: "token", BaseURL: srv.URL, Locale: "de-DE", RateLimit: 1000})
	require.NoError(t, src.Connect(context.Background()))

	set, err := src.Records(context.Background())
	require.NoError(t, err)
	a1, _ := set.Find(record.Key{Type: "author", ContentID: "a1"})
	assert.Equal(t, "Johanna", a1.Get("name"))
}

func TestRecords_Assets(t *testing.T) {
	srv, _ := newSpaceServer(t)
	src := newTestSource(srv.URL, true)
	require.NoError(t, src.Connect(context.Background()))

	set, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, set[AssetType], 1)
	assert.Equal(t, "Hero", set[AssetType][0].Get("title"))
}

func TestResolveAndArrange(t *testing.T) {
	srv, _ := newSpaceServer(t)
	src := newTestSource(srv.URL, true)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))

	set, err := src.Records(ctx)
	require.NoError(t, err)

	logs, logger := testutil.NewLogRecorder()
	r := &graph.Resolver{KeyOf: src.LinkKeys(set), Logger: logger}
	live, rep := r.Resolve(set)
	require.NoError(t, src.ArrangeRelationships(ctx, live))

	require.Len(t, rep.Dangling, 1)
	assert.Equal(t, record.Key{Type: "Entry", ContentID: "zz"}, rep.Dangling[0].Target)
	assert.Equal(t, 1, logs.Count("dangling reference"))

	p1, _ := live.Find(record.Key{Type: "article", ContentID: "p1"})
	a1, _ := live.Find(record.Key{Type: "author", ContentID: "a1"})
	img, _ := live.Find(record.Key{Type: AssetType, ContentID: "img1"})

	author, ok := p1.Ref("author")
	require.True(t, ok)
	assert.Same(t, a1, author)
	hero, ok := p1.Ref("hero")
	require.True(t, ok)
	assert.Same(t, img, hero)

	body := p1.Get("body").(map[string]any)
	block := body["content"].([]any)[0].(map[string]any)
	target := block["data"].(map[string]any)["target"]
	assert.Same(t, a1, target, "rich text embeds are bound by ArrangeRelationships")

	p2, _ := live.Find(record.Key{Type: "article", ContentID: "p2"})
	related := p2.Get("related").([]any)
	assert.Same(t, p1, related[0])
	assert.True(t, isLinkLike(related[1]), "dangling link stays a descriptor")
}

func TestRecords_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items": [], "nextSyncUrl": "x"}`)
	}))
	defer srv.Close()

	src := newTestSource(srv.URL, false)
	require.NoError(t, src.Connect(context.Background()))
	set, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestRecords_ClientErrorIsNotRetried(t *testing.T) {
	srv, requests := newSpaceServer(t)
	src := New(Options{Space: "space1", AccessToken: "wrong", BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 3})
	require.NoError(t, src.Connect(context.Background()))

	_, err := src.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), requests.Load())
}

func TestRecords_NotConnected(t *testing.T) {
	_, err := New(Options{}).Records(context.Background())
	assert.Error(t, err)
}

func TestLinkKeys_BoundToOneSet(t *testing.T) {
	src := newTestSource("http://unused", false)
	link := map[string]any{"sys": map[string]any{"type": "Link", "linkType": "Entry", "id": "a1"}}

	withAuthor := record.Set{}
	withAuthor.Add(record.New("author", "a1", nil))
	keysA := src.LinkKeys(withAuthor)
	keysB := src.LinkKeys(record.Set{})

	key, ok := keysA(link)
	require.True(t, ok)
	assert.Equal(t, record.Key{Type: "author", ContentID: "a1"}, key)

	key, ok = keysB(link)
	require.True(t, ok)
	assert.Equal(t, record.Key{Type: "Entry", ContentID: "a1"}, key)

	// Building another function leaves the first untouched.
	key, _ = keysA(link)
	assert.Equal(t, "author", key.Type)

	_, ok = keysA(map[string]any{"title": "x"})
	assert.False(t, ok)
}

func TestSync_ConcurrentSyncs(t *testing.T) {
	srv, _ := newSpaceServer(t)
	src := newTestSource(srv.URL, true)
	_, logger := testutil.NewLogRecorder()
	orch := syncer.New(src, store.NewMemory(), syncer.Config{SourceName: "contentful", Logger: logger})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = orch.Sync(ctx)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	content, err := orch.Content(ctx)
	require.NoError(t, err)
	p1, ok := content.Find(record.Key{Type: "article", ContentID: "p1"})
	require.True(t, ok)
	a1, _ := content.Find(record.Key{Type: "author", ContentID: "a1"})
	author, ok := p1.Ref("author")
	require.True(t, ok)
	assert.Same(t, a1, author)
}

func TestSync_FilteredTargetKeepsType(t *testing.T) {
	srv, _ := newSpaceServer(t)
	src := newTestSource(srv.URL, true)
	logs, logger := testutil.NewLogRecorder()
	orch := syncer.New(src, store.NewMemory(), syncer.Config{
		SourceName: "contentful",
		Logger:     logger,
		Blacklist:  []string{"author"},
	})
	require.NoError(t, orch.Sync(context.Background()))

	var targets []any
	for _, e := range logs.Messages("dangling reference") {
		targets = append(targets, e.Attrs["target"])
	}
	assert.Contains(t, targets, "author/a1")
	assert.Contains(t, targets, "Entry/zz")
	assert.NotContains(t, targets, "Entry/a1")
}
