package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/botrelay/internal/relay"
)

func mustBot(t *testing.T, raw string) relay.Bot {
	t.Helper()
	var bot relay.Bot
	require.NoError(t, json.Unmarshal([]byte(raw), &bot))
	return bot
}

func TestRegistrationStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRegistrationStore()
	ctx := context.Background()
	reg := relay.Registration{
		AltAccount:   "acct1",
		BotName:      "Alpha",
		CategoryID:   "cat1",
		Bot:          mustBot(t, `{"nickname":"Alpha","email":"a@example.com"}`),
		RegisteredAt: time.Unix(100, 0),
	}

	_, err := store.Get(ctx, "acct1", "Alpha")
	require.ErrorIs(t, err, relay.ErrRegistrationNotFound)

	require.NoError(t, store.Put(ctx, reg))
	got, err := store.Get(ctx, "acct1", "Alpha")
	require.NoError(t, err)
	require.Equal(t, "cat1", got.CategoryID)
	require.Equal(t, "a@example.com", got.Bot.Email)

	reg.CategoryID = "cat2"
	require.NoError(t, store.Put(ctx, reg))
	got, err = store.Get(ctx, "acct1", "Alpha")
	require.NoError(t, err)
	require.Equal(t, "cat2", got.CategoryID, "last write wins")

	list, err := store.List(ctx, "acct1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"acct1"}, accounts)

	require.NoError(t, store.Delete(ctx, "acct1", "Alpha"))
	require.ErrorIs(t, store.Delete(ctx, "acct1", "Alpha"), relay.ErrRegistrationNotFound)
	accounts, err = store.Accounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func TestRegistrationStoreRejectsIncompleteKey(t *testing.T) {
	t.Parallel()

	store := NewRegistrationStore()
	require.Error(t, store.Put(context.Background(), relay.Registration{AltAccount: "acct1"}))
	require.Error(t, store.Put(context.Background(), relay.Registration{BotName: "Alpha"}))
}

func TestRegistrationStoreListIsSortedAndScoped(t *testing.T) {
	t.Parallel()

	store := NewRegistrationStore()
	ctx := context.Background()
	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		require.NoError(t, store.Put(ctx, relay.Registration{AltAccount: "acct1", BotName: name}))
	}
	require.NoError(t, store.Put(ctx, relay.Registration{AltAccount: "acct2", BotName: "Zulu"}))

	list, err := store.List(ctx, "acct1")
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, reg := range list {
		names = append(names, reg.BotName)
	}
	require.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, names)

	empty, err := store.List(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestRegistrationStoreConcurrentPutGet(t *testing.T) {
	t.Parallel()

	store := NewRegistrationStore()
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			category := fmt.Sprintf("cat-%d", i)
			err := store.Put(ctx, relay.Registration{
				AltAccount: "acct",
				BotName:    "Alpha",
				CategoryID: category,
				Bot:        relay.Bot{Nickname: "Alpha", Email: category},
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			reg, err := store.Get(ctx, "acct", "Alpha")
			if err != nil {
				return
			}
			// Category and snapshot are written together.
			assert.Equal(t, reg.CategoryID, reg.Bot.Email)
		}()
	}
	wg.Wait()

	reg, err := store.Get(ctx, "acct", "Alpha")
	require.NoError(t, err)
	require.Equal(t, reg.CategoryID, reg.Bot.Email)
}
