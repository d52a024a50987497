package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/usercontext"
)

type freeEnrollmentRequest struct {
	CourseID string `json:"courseId"`
	SiteID   string `json:"siteId"`
}

// HandleFreeEnrollment enrolls the caller in a free course.
func (h *Handlers) HandleFreeEnrollment(c *fiber.Ctx) error {
	var req freeEnrollmentRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.CourseID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "courseId is required")
	}
	userID := usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	course, err := h.Courses.GetByID(ctx, strings.TrimSpace(req.CourseID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Course not found")
		}
		h.logger().Error("course lookup failed", "course_id", req.CourseID, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load course")
	}
	if !course.IsPublished() {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Course not found")
	}
	if !course.Pricing.Free() {
		return jsonError(c, fiber.StatusPaymentRequired, "payment_required", "This course requires payment")
	}

	_, created, err := h.Enrollments.Enroll(ctx, enrollment.Input{
		UserID:   userID,
		CourseID: course.ID,
		SiteID:   strings.TrimSpace(req.SiteID),
		Source:   models.EnrollmentSourceFree,
	})
	if err != nil {
		h.logger().Error("free enrollment failed", "course_id", course.ID, "user_id", userID, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Enrollment failed")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "enrolled": true, "created": created})
}

// HandleEnrollmentAccess reports whether the caller may open a course.
func (h *Handlers) HandleEnrollmentAccess(c *fiber.Ctx) error {
	courseID := strings.TrimSpace(c.Query("courseId"))
	if courseID == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "courseId is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	enrolled, err := h.Enrollments.IsEnrolled(ctx, usercontext.GetUserID(c), courseID)
	if err != nil {
		h.logger().Error("enrollment lookup failed", "course_id", courseID, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to check enrollment")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"enrolled": enrolled})
}
