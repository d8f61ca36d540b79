package portal_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	portal "github.com/olympiadhub/go-portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSearcherDiscardsStaleResponses(t *testing.T) {
	backend := adminBackend(t)
	_, store, _ := newSession(backend)
	store.Bootstrap(context.Background())
	require.NoError(t, store.Login(context.Background(), "anna@example.lv", "correct horse"))

	searcher := portal.NewUserSearcher(store)

	// Gate the first search so its response arrives after the second one
	// already resolved, simulating out-of-order network completion.
	arrived := make(chan struct{})
	release := make(chan struct{})
	original := backend.srv.Config.Handler
	backend.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") == "janis" {
			close(arrived)
			<-release
		}
		original.ServeHTTP(w, r)
	})

	var wg sync.WaitGroup
	var staleApplied bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, applied, err := searcher.Search(context.Background(), "janis")
		assert.NoError(t, err)
		staleApplied = applied
	}()

	// Only fire the second search once the first is demonstrably in flight,
	// then let it overtake the gated one.
	<-arrived
	fresh, applied, err := searcher.Search(context.Background(), "ilze")
	require.NoError(t, err)
	assert.True(t, applied)
	require.Len(t, fresh, 1)

	close(release)
	wg.Wait()

	assert.False(t, staleApplied, "an older response must never overwrite a newer one")

	latest := searcher.Latest()
	require.Len(t, latest, 1)
	assert.Equal(t, "ilze@skola.lv", latest[0].Email)
}

func TestUserSearcherAppliesInOrder(t *testing.T) {
	backend := adminBackend(t)
	_, store, _ := newSession(backend)
	store.Bootstrap(context.Background())
	require.NoError(t, store.Login(context.Background(), "anna@example.lv", "correct horse"))

	searcher := portal.NewUserSearcher(store)

	results, applied, err := searcher.Search(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Len(t, results, 3)

	results, applied, err = searcher.Search(context.Background(), "skola")
	require.NoError(t, err)
	assert.True(t, applied)
	require.Len(t, results, 1)
	assert.Equal(t, searcher.Latest()[0].Email, results[0].Email)
}
