package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/shared/api"
	"github.com/itchan-dev/starter/shared/domain"
)

// === Board Methods ===

func (c *APIClient) ListBoards(ctx context.Context, page int) ([]domain.BoardMetadata, error) {
	return c.boards.Fetch(ctx, api.BoardListParams{Page: page})
}

// BoardsState returns the cached board list without waiting for the backend.
func (c *APIClient) BoardsState(ctx context.Context, page int) query.State[[]domain.BoardMetadata] {
	return c.boards.Use(ctx, api.BoardListParams{Page: page})
}

func (c *APIClient) GetBoard(ctx context.Context, shortName string, page int) (domain.Board, error) {
	return c.board.Fetch(ctx, api.BoardParams{ShortName: shortName, Page: page})
}

func (c *APIClient) CreateBoard(ctx context.Context, req api.CreateBoardRequest) (domain.BoardMetadata, error) {
	if err := c.validateRequest(req); err != nil {
		return domain.BoardMetadata{}, err
	}
	return c.createBoard.Mutate(ctx, req)
}

func (c *APIClient) DeleteBoard(ctx context.Context, shortName string) error {
	_, err := c.deleteBoard.Mutate(ctx, shortName)
	return err
}

// CreatingBoard reports whether a board creation is in flight.
func (c *APIClient) CreatingBoard() bool {
	return c.createBoard.IsPending()
}

func (c *APIClient) fetchBoards(ctx context.Context, p api.BoardListParams) ([]domain.BoardMetadata, error) {
	resp, err := fetcher.Fetch[api.BoardListResponse](ctx, c.fetcherFor(ctx), "v1/boards",
		fetcher.WithParams(pageParams(p.Page)),
		fetcher.WithJSONMockup("boards/list.json"),
	)
	if err != nil {
		return nil, err
	}
	if resp.Boards == nil {
		return []domain.BoardMetadata{}, nil
	}
	return resp.Boards, nil
}

func (c *APIClient) fetchBoard(ctx context.Context, p api.BoardParams) (domain.Board, error) {
	board, err := fetcher.Fetch[domain.Board](ctx, c.fetcherFor(ctx), "v1/"+url.PathEscape(p.ShortName),
		fetcher.WithParams(pageParams(p.Page)),
		fetcher.WithJSONMockup("boards/get.json"),
	)
	if err != nil {
		return board, err
	}
	if board.Threads == nil {
		board.Threads = []domain.ThreadMetadata{}
	}
	return board, nil
}

func (c *APIClient) postBoard(ctx context.Context, req api.CreateBoardRequest) (domain.BoardMetadata, error) {
	board, err := fetcher.Fetch[domain.BoardMetadata](ctx, c.fetcherFor(ctx), "v1/admin/boards",
		fetcher.WithMethod(http.MethodPost),
		fetcher.WithBody(req),
		fetcher.WithJSONMockup("boards/create.json"),
	)
	if err != nil {
		return board, fmt.Errorf("failed to create board: %w", err)
	}
	return board, nil
}

func (c *APIClient) removeBoard(ctx context.Context, shortName string) (struct{}, error) {
	_, err := fetcher.Raw(ctx, c.fetcherFor(ctx), "v1/admin/"+url.PathEscape(shortName),
		fetcher.WithMethod(http.MethodDelete),
		fetcher.WithJSONMockup("boards/delete.json"),
	)
	if err != nil {
		return struct{}{}, fmt.Errorf("failed to delete board: %w", err)
	}
	return struct{}{}, nil
}

func pageParams(page int) url.Values {
	if page <= 1 {
		return nil
	}
	return url.Values{"page": {strconv.Itoa(page)}}
}
