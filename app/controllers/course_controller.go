package controllers

import (
	"github.com/gofiber/fiber/v2"
)

const catalogCacheControl = "public, max-age=60, s-maxage=60"

// HandleCoursesByWebsite serves the public course catalog of a site.
func (h *Handlers) HandleCoursesByWebsite(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	body, err := h.Catalog.CoursesJSON(ctx, c.Query("website_name"))
	if err != nil {
		h.logger().Error("catalog read failed", "website_name", c.Query("website_name"), "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load courses")
	}

	c.Set(fiber.HeaderCacheControl, catalogCacheControl)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(body)
}
