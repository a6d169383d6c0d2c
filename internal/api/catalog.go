package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/catalog"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

type createCategoryRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	TransactionType string `json:"transactionType"`
	UsageScope      string `json:"usageScope"`
}

type createRuleRequest struct {
	CategoryID  string `json:"categoryId"`
	Field       string `json:"field"`
	MatchType   string `json:"matchType"`
	Pattern     string `json:"pattern"`
	DisplayName string `json:"displayName"`
}

type createBusinessRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	TaxID       string `json:"taxId"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	cats, err := s.deps.Catalog.Categories(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]categoryResponse, len(cats))
	for i := range cats {
		out[i] = toCategory(&cats[i])
	}
	return c.JSON(fiber.Map{"categories": out})
}

func (s *Server) createCategory(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return common.NewValidationError("body", "must be a JSON object")
	}
	cat, created, err := s.deps.Catalog.CreateCategory(c.UserContext(), userID, catalog.NewCategory{
		Name:            req.Name,
		Description:     req.Description,
		TransactionType: model.TransactionType(req.TransactionType),
		UsageScope:      model.UsageScope(req.UsageScope),
	})
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(toCategory(cat))
}

func (s *Server) deleteCategory(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteCategory(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listRules(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	rules, err := s.deps.Catalog.Rules(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]ruleResponse, len(rules))
	for i := range rules {
		out[i] = toRule(&rules[i])
	}
	return c.JSON(fiber.Map{"rules": out})
}

func (s *Server) createRule(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return common.NewValidationError("body", "must be a JSON object")
	}
	rule, err := s.deps.Catalog.CreateRule(c.UserContext(), userID, catalog.NewRule(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toRule(rule))
}

func (s *Server) deleteRule(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteRule(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listBusinesses(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.deps.Catalog.Businesses(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]businessResponse, len(list))
	for i := range list {
		out[i] = toBusiness(&list[i])
	}
	return c.JSON(fiber.Map{"businesses": out})
}

func (s *Server) createBusiness(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createBusinessRequest
	if err := c.BodyParser(&req); err != nil {
		return common.NewValidationError("body", "must be a JSON object")
	}
	b, err := s.deps.Catalog.CreateBusiness(c.UserContext(), userID, catalog.NewBusiness{
		Name:        req.Name,
		Type:        model.BusinessType(req.Type),
		TaxID:       req.TaxID,
		Address:     req.Address,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toBusiness(b))
}

func (s *Server) deleteBusiness(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteBusiness(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
