// Package apiclient holds the per-feature backend calls of the frontend. Reads
// go through the query cache, writes are mutations invalidating the resources
// they change.
package apiclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/domain"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
)

// Cache resources.
const (
	ResourceBoards = "boards"
	ResourceUsers  = "users"
)

// APIClient talks to the backend on behalf of the current request. The
// Fetcher bound to ctx (see fetcher.NewContext) wins over the default one,
// so session handling follows the caller.
type APIClient struct {
	fetcher  *fetcher.Fetcher
	cache    *query.Client
	validate *validator.Validate

	boards      *query.Query[api.BoardListParams, []domain.BoardMetadata]
	board       *query.Query[api.BoardParams, domain.Board]
	me          *query.Query[struct{}, domain.User]
	createBoard *query.Mutation[api.CreateBoardRequest, domain.BoardMetadata]
	deleteBoard *query.Mutation[string, struct{}]
}

func New(f *fetcher.Fetcher, cache *query.Client) *APIClient {
	c := &APIClient{
		fetcher:  f,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	c.boards = query.NewQuery(cache, ResourceBoards, c.fetchBoards)
	c.board = query.NewQuery(cache, ResourceBoards, c.fetchBoard)
	c.me = query.NewQuery(cache, ResourceUsers, c.fetchMe)
	c.createBoard = query.NewMutation(cache, c.postBoard, ResourceBoards)
	c.deleteBoard = query.NewMutation(cache, c.removeBoard, ResourceBoards)
	return c
}

// Cache returns the query cache the client reads through.
func (c *APIClient) Cache() *query.Client {
	return c.cache
}

func (c *APIClient) fetcherFor(ctx context.Context) *fetcher.Fetcher {
	if f, ok := fetcher.FromContext(ctx); ok {
		return f
	}
	return c.fetcher
}

// validateRequest rejects invalid input before any dispatch.
func (c *APIClient) validateRequest(req any) error {
	if err := c.validate.Struct(req); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
		} else {
			fields = append(fields, err.Error())
		}
		return &internal_errors.ErrorWithStatusCode{
			Message:    "invalid request: " + strings.Join(fields, ", "),
			StatusCode: http.StatusBadRequest,
		}
	}
	return nil
}
