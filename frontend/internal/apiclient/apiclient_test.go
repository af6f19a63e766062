package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/frontend/internal/transport"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/config"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureClient(t *testing.T) *APIClient {
	t.Helper()
	tr, err := transport.New("http://backend.invalid", transport.WithFixtures(os.DirFS("../../mock")))
	require.NoError(t, err)
	cache := query.NewClient()
	t.Cleanup(cache.Close)
	return New(fetcher.New(tr, fetcher.WithMode(config.ModeDevelopment)), cache)
}

// fakeBackend serves the routes the client uses and counts hits per route.
type fakeBackend struct {
	boardLists atomic.Int32
	creates    atomic.Int32
	deletes    atomic.Int32
	boards     []map[string]any
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/boards":
		b.boardLists.Add(1)
		_ = json.NewEncoder(w).Encode(api.OK(map[string]any{"boards": b.boards}))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/admin/boards":
		b.creates.Add(1)
		var req api.CreateBoardRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.boards = append(b.boards, map[string]any{"name": req.Name, "short_name": req.ShortName})
		_ = json.NewEncoder(w).Encode(api.OK(map[string]any{"name": req.Name, "short_name": req.ShortName}))
	case r.Method == http.MethodDelete && r.URL.Path == "/v1/admin/b":
		b.deletes.Add(1)
		_ = json.NewEncoder(w).Encode(api.OK[any](nil))
	case r.URL.Path == "/v1/auth/login":
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Message: "wrong email or password"})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Message: "boom"})
	}
}

func liveClient(t *testing.T, backend http.Handler, presenter dialog.ErrorPresenter) *APIClient {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	tr, err := transport.New(srv.URL)
	require.NoError(t, err)
	cache := query.NewClient()
	t.Cleanup(cache.Close)
	return New(fetcher.New(tr, fetcher.WithPresenter(presenter)), cache)
}

func TestFixtures(t *testing.T) {
	c := fixtureClient(t)
	ctx := context.Background()

	t.Run("board list", func(t *testing.T) {
		boards, err := c.ListBoards(ctx, 1)
		require.NoError(t, err)
		require.Len(t, boards, 2)
		assert.Equal(t, "b", boards[0].ShortName)
		assert.Equal(t, "Programming", boards[1].Name)
	})

	t.Run("board", func(t *testing.T) {
		board, err := c.GetBoard(ctx, "b", 1)
		require.NoError(t, err)
		assert.Equal(t, "Random", board.Name)
		assert.Len(t, board.Threads, 2)
		assert.True(t, board.Threads[0].IsSticky)
	})

	t.Run("create", func(t *testing.T) {
		board, err := c.CreateBoard(ctx, api.CreateBoardRequest{Name: "Mock board", ShortName: "mock"})
		require.NoError(t, err)
		assert.Equal(t, "mock", board.ShortName)
	})

	t.Run("delete", func(t *testing.T) {
		assert.NoError(t, c.DeleteBoard(ctx, "mock"))
	})

	t.Run("login", func(t *testing.T) {
		token, err := c.Login(ctx, api.LoginRequest{Email: "admin@example.com", Password: "password"})
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("me", func(t *testing.T) {
		user, err := c.Me(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.Id)
		assert.True(t, user.Admin)
	})
}

func TestCreateBoard_InvalidatesList(t *testing.T) {
	backend := &fakeBackend{boards: []map[string]any{{"name": "Random", "short_name": "b"}}}
	c := liveClient(t, backend, dialog.Nop{})
	ctx := context.Background()

	boards, err := c.ListBoards(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, boards, 1)

	_, err = c.ListBoards(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.boardLists.Load(), "second read is served from cache")

	_, err = c.CreateBoard(ctx, api.CreateBoardRequest{Name: "Programming", ShortName: "pr"})
	require.NoError(t, err)

	boards, err = c.ListBoards(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, boards, 2)
	assert.Equal(t, int32(2), backend.boardLists.Load())

	require.NoError(t, c.DeleteBoard(ctx, "b"))
	_, err = c.ListBoards(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), backend.boardLists.Load())
}

func TestCreateBoard_Validation(t *testing.T) {
	backend := &fakeBackend{}
	c := liveClient(t, backend, dialog.Nop{})

	_, err := c.CreateBoard(context.Background(), api.CreateBoardRequest{Name: "", ShortName: "not valid!"})
	require.Error(t, err)

	code, ok := internal_errors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, err.Error(), "Name required")
	assert.Contains(t, err.Error(), "ShortName alphanum")
	assert.Equal(t, int32(0), backend.creates.Load())
}

func TestLogin_NoDialog(t *testing.T) {
	rec := &dialog.Recorder{}
	c := liveClient(t, &fakeBackend{}, rec)

	_, err := c.Login(context.Background(), api.LoginRequest{Email: "admin@example.com", Password: "bad"})
	require.Error(t, err)

	var se *internal_errors.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "wrong email or password", se.Message)
	assert.Empty(t, rec.Dialogs())
}

func TestLogin_InvalidRequest(t *testing.T) {
	c := liveClient(t, &fakeBackend{}, dialog.Nop{})
	_, err := c.Login(context.Background(), api.LoginRequest{Email: "not an email", Password: "x"})
	code, ok := internal_errors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFetcherFromContext(t *testing.T) {
	fallback := &dialog.Recorder{}
	c := liveClient(t, &fakeBackend{}, fallback)

	bound := &dialog.Recorder{}
	ctx := fetcher.NewContext(context.Background(), c.fetcher.With(fetcher.WithPresenter(bound)))

	_, err := c.Me(ctx)
	require.Error(t, err)
	assert.Len(t, bound.Dialogs(), 1)
	assert.Equal(t, "boom", bound.Dialogs()[0].Message)
	assert.Empty(t, fallback.Dialogs())
}

func TestLogout_DropsScope(t *testing.T) {
	backend := &fakeBackend{}
	c := liveClient(t, backend, dialog.Nop{})
	ctx := query.WithScope(context.Background(), "session-a")

	_, err := c.ListBoards(ctx, 1)
	require.NoError(t, err)
	c.Logout("session-a")
	assert.Equal(t, 0, c.Cache().Len())

	_, err = c.ListBoards(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.boardLists.Load())
}
