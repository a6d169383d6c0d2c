package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/activity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/batch"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/extract"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/pipeline"
)

const dateLayout = "2006-01-02"

type fileRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type createBatchRequest struct {
	ImportType        string        `json:"importType"`
	Currency          string        `json:"currency"`
	DefaultBusinessID string        `json:"defaultBusinessId"`
	StatementType     string        `json:"statementType"`
	SourceFormat      string        `json:"sourceFormat"`
	DateFrom          string        `json:"dateFrom"`
	DateTo            string        `json:"dateTo"`
	Files             []fileRequest `json:"files"`
}

func (r createBatchRequest) defaults() (model.BatchDefaults, error) {
	d := model.BatchDefaults{
		Currency:          r.Currency,
		DefaultBusinessID: r.DefaultBusinessID,
		StatementType:     r.StatementType,
		SourceFormat:      r.SourceFormat,
	}
	var err error
	if d.DateFrom, err = parseDate("dateFrom", r.DateFrom); err != nil {
		return d, err
	}
	if d.DateTo, err = parseDate("dateTo", r.DateTo); err != nil {
		return d, err
	}
	if d.DateFrom != nil && d.DateTo != nil && d.DateTo.Before(*d.DateFrom) {
		return d, common.NewValidationError("dateTo", "is before dateFrom")
	}
	return d, nil
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, common.NewValidationError(field, "must be YYYY-MM-DD")
	}
	return &t, nil
}

func (s *Server) createBatch(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return common.NewValidationError("body", "must be a JSON object")
	}
	defaults, err := req.defaults()
	if err != nil {
		return err
	}
	schemes := s.deps.FileSchemes
	if len(schemes) == 0 {
		schemes = extract.RemoteSchemes
	}
	files := make([]batch.File, len(req.Files))
	for i, f := range req.Files {
		if err := extract.CheckURL(f.URL, schemes); err != nil {
			var validationErr *common.ValidationError
			if errors.As(err, &validationErr) {
				validationErr.Field = fmt.Sprintf("files[%d].url", i)
			}
			return err
		}
		files[i] = batch.File{Name: f.Name, URL: f.URL}
	}

	sub, err := s.deps.Processor.Submit(c.UserContext(), userID, model.ImportType(req.ImportType), defaults, files)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoPublisher) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "import workers are not running")
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"batch":    toBatch(sub.Batch),
		"items":    toItems(sub.Items),
		"enqueued": sub.Enqueue.Enqueued,
		"failed":   sub.Enqueue.Failed,
	})
}

func (s *Server) listBatches(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		return common.NewValidationError("limit", "must be between 1 and 200")
	}
	batches, err := s.deps.Processor.Tracker().List(c.UserContext(), userID, limit)
	if err != nil {
		return err
	}
	out := make([]batchResponse, len(batches))
	for i := range batches {
		out[i] = toBatch(&batches[i])
	}
	return c.JSON(fiber.Map{"batches": out})
}

func (s *Server) getBatch(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	b, err := s.deps.Processor.Tracker().Get(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toBatch(b))
}

func (s *Server) listItems(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := s.deps.Processor.Tracker().Items(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": toItems(items)})
}

func (s *Server) batchActivity(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	b, err := s.deps.Processor.Tracker().Get(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	events, err := s.deps.Processor.Activity().List(c.UserContext(), b.ID)
	if err != nil {
		return err
	}
	timeline := activity.Timeline(events)
	if c.Query("format") == "text" {
		return c.SendString(activity.Render(timeline))
	}
	if timeline == nil {
		timeline = []activity.Entry{}
	}
	return c.JSON(fiber.Map{"activity": timeline})
}

func (s *Server) cancelBatch(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	b, err := s.deps.Processor.Cancel(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toBatch(b))
}

func (s *Server) retryItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := s.deps.Processor.Retry(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNoPublisher) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "import workers are not running")
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"eventId": res.EventID})
}

func (s *Server) retryFailed(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := s.deps.Processor.RetryAllFailed(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNoPublisher) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "import workers are not running")
		}
		return err
	}
	failures := make([]fiber.Map, len(res.Errors))
	for i, e := range res.Errors {
		failures[i] = fiber.Map{"itemId": e.BatchItemID, "error": common.ErrorMessage(e.Err)}
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"retried": res.Retried,
		"failed":  res.Failed,
		"errors":  failures,
	})
}
