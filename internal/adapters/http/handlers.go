package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

// ListIndexesHandler returns every index with its record counts.
func ListIndexesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		indexes, err := deps.Search.ListIndexes(c.UserContext())
		if err != nil {
			return errFromService(c, err)
		}

		pg := parsePagination(c, 100, 200)
		indexes = page(indexes, &pg)

		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: indexes, Pagination: pg})
	}
}

// SearchHandler runs a geo search on the index named in the path.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := searchParamsFromQuery(c, c.Params("index"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		results, err := deps.Search.Search(c.UserContext(), params)
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(results)
	}
}

// LegacySearchHandler serves the query-string form /v1/search?index=.
func LegacySearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		index := c.Query("index")
		if index == "" {
			return errBadRequest(c, "index query parameter is required")
		}
		params, err := searchParamsFromQuery(c, index)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		results, err := deps.Search.Search(c.UserContext(), params)
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(results)
	}
}

// GetRecordHandler returns one record of an index.
func GetRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := deps.Search.GetRecord(c.UserContext(), c.Params("index"), c.Params("objectID"))
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(rec)
	}
}

// GetUIStateHandler returns the stored UI state of a session.
func GetUIStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ui, err := deps.UIState.Load(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromService(c, err)
		}
		c.Set("Cache-Control", "private, no-store")
		return c.JSON(ui)
	}
}

// PutUIStateHandler replaces the stored UI state of a session.
func PutUIStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var ui domain.IndexUIState
		if err := json.Unmarshal(c.Body(), &ui); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.UIState.Save(c.UserContext(), c.Params("id"), ui); err != nil {
			return errFromService(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// InsightsHandler accepts an insights event from a client.
func InsightsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var event domain.InsightsEvent
		if err := json.Unmarshal(c.Body(), &event); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Insights.Send(c.UserContext(), &event); err != nil {
			return errFromService(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}
}

// searchParamsFromQuery reads search parameters from the query string.
// insideBoundingBox takes the "neLat,neLng,swLat,swLng" form or a JSON
// nested array.
func searchParamsFromQuery(c *fiber.Ctx, index string) (domain.SearchParameters, error) {
	params := domain.SearchParameters{
		Index:        index,
		Query:        c.Query("query"),
		AroundLatLng: c.Query("aroundLatLng"),
		AroundRadius: c.QueryInt("aroundRadius", 0),
		Page:         c.QueryInt("page", 0),
		HitsPerPage:  c.QueryInt("hitsPerPage", 0),
	}

	raw := strings.TrimSpace(c.Query("insideBoundingBox"))
	switch {
	case raw == "":
	case strings.HasPrefix(raw, "["):
		var p domain.BoundingBoxParam
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return params, domain.ErrInvalidBoundingBox
		}
		params.InsideBoundingBox = &p
	default:
		params.InsideBoundingBox = domain.BoundingBoxText(raw)
	}
	return params, nil
}
