package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
)

type categorizeRequest struct {
	CategoryID    string `json:"categoryId"`
	BusinessID    string `json:"businessId"`
	ApplyToFuture bool   `json:"applyToFuture"`
}

func (s *Server) listTransactions(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	start, err := parseDate("start", c.Query("start"))
	if err != nil {
		return err
	}
	end, err := parseDate("end", c.Query("end"))
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return common.NewValidationError("limit", "cannot be negative")
	}

	report, err := s.deps.Ledger.Report(c.UserContext(), userID, ledger.Filter{Start: start, End: end, Limit: limit})
	if err != nil {
		return err
	}
	return c.JSON(toLedger(report))
}

func (s *Server) categorizeTransaction(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req categorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return common.NewValidationError("body", "must be a JSON object")
	}

	rule, err := s.deps.Decider.ApplyDecision(c.UserContext(), userID, categorize.Decision{
		TransactionID: c.Params("id"),
		CategoryID:    req.CategoryID,
		BusinessID:    req.BusinessID,
		ApplyToFuture: req.ApplyToFuture,
	})
	if err != nil {
		return err
	}
	resp := fiber.Map{"transactionId": c.Params("id"), "categoryId": req.CategoryID}
	if rule != nil {
		resp["rule"] = toRule(rule)
	}
	return c.JSON(resp)
}
