package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/learnerfast/learnerfast/internal/pkg/domains"
	"github.com/learnerfast/learnerfast/internal/pkg/usercontext"
)

type addDomainRequest struct {
	SiteID string `json:"siteId"`
	Domain string `json:"domain"`
}

type verifyDomainRequest struct {
	DomainID string `json:"domainId"`
}

// HandleAddDomain registers a custom domain for one of the caller's sites.
func (h *Handlers) HandleAddDomain(c *fiber.Ctx) error {
	var req addDomainRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	if strings.TrimSpace(req.SiteID) == "" || strings.TrimSpace(req.Domain) == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "siteId and domain are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	domain, err := h.Domains.Add(ctx, usercontext.GetUserID(c), strings.TrimSpace(req.SiteID), req.Domain)
	if err != nil {
		return h.domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"domain":  domain,
		"records": domain.Records,
	})
}

// HandleListDomains lists the caller's domains, optionally for one site.
func (h *Handlers) HandleListDomains(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.Domains.List(ctx, usercontext.GetUserID(c), strings.TrimSpace(c.Query("siteId")))
	if err != nil {
		return h.domainError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"domains": list})
}

// HandleDeleteDomain removes one of the caller's domains.
func (h *Handlers) HandleDeleteDomain(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "id is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Domains.Delete(ctx, usercontext.GetUserID(c), id); err != nil {
		return h.domainError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// HandleVerifyDomain runs a live DNS ownership check. DNS problems are
// reported as verified:false with status 200.
func (h *Handlers) HandleVerifyDomain(c *fiber.Ctx) error {
	var req verifyDomainRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.DomainID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "domainId is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Domains.Verify(ctx, usercontext.GetUserID(c), strings.TrimSpace(req.DomainID))
	if err != nil {
		if errors.Is(err, domains.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Domain not found")
		}
		h.logger().Error("domain verification failed", "domain_id", req.DomainID, "error", err)
		return c.Status(fiber.StatusOK).JSON(domains.VerifyResult{Verified: false, Message: "Verification could not be completed, please try again"})
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *Handlers) domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domains.ErrInvalidDomain):
		return jsonError(c, fiber.StatusBadRequest, "invalid_domain", "Please enter a valid domain such as courses.example.com")
	case errors.Is(err, domains.ErrRootDomain):
		return jsonError(c, fiber.StatusBadRequest, "invalid_domain", err.Error())
	case errors.Is(err, domains.ErrForbidden):
		return jsonError(c, fiber.StatusForbidden, "forbidden", "You do not have access to this site")
	case errors.Is(err, domains.ErrDuplicate):
		return jsonError(c, fiber.StatusConflict, "domain_exists", "This domain is already registered")
	case errors.Is(err, domains.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Domain not found")
	default:
		h.logger().Error("domain request failed", "path", c.Path(), "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Domain request failed")
	}
}
