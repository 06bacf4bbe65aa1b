package http

import (
	"github.com/gofiber/fiber/v2"

	"mailmirror/core/port/in"
)

// EmailHandler backs the read-only external listing/mutation interface
// (§6), grounded on worker_email_handler.go's list/get/read/delete
// surface, narrowed to the fields this mirror actually exposes.
type EmailHandler struct {
	emails in.EmailService
}

func NewEmailHandler(emails in.EmailService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

func (h *EmailHandler) Register(app fiber.Router) {
	emails := app.Group("/emails")
	emails.Get("/", h.List)
	emails.Get("/:id", h.Get)
	emails.Patch("/:id/read-status", h.SetReadStatus)
	emails.Delete("/:id", h.Delete)
}

func (h *EmailHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}

	accountID := c.Query("accountId")
	if accountID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "accountId is required")
	}
	pagination := GetPaginationParams(c)

	messages, total, err := h.emails.List(c.Context(), userID, in.MessageListQuery{
		AccountID: accountID,
		Folder:    c.Query("folder"),
		IsRead:    QueryBool(c, "isRead"),
		FromDate:  QueryTime(c, "fromDate"),
		ToDate:    QueryTime(c, "toDate"),
		Page:      pagination.Page,
		Limit:     pagination.Limit,
	})
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{
		"messages": messages,
		"total":    total,
		"page":     pagination.Page,
		"limit":    pagination.Limit,
	})
}

func (h *EmailHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	message, err := h.emails.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, message)
}

type setReadStatusRequest struct {
	IsRead bool `json:"isRead"`
}

func (h *EmailHandler) SetReadStatus(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req setReadStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.emails.SetReadStatus(c.Context(), userID, c.Params("id"), req.IsRead); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"id": c.Params("id"), "isRead": req.IsRead})
}

func (h *EmailHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if err := h.emails.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"id": c.Params("id"), "deleted": true})
}

// SearchHandler backs the full-text/sender search external interface (§6).
type SearchHandler struct {
	search in.SearchService
}

func NewSearchHandler(search in.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Register(app fiber.Router) {
	s := app.Group("/search")
	s.Get("/", h.Query)
	s.Get("/sender", h.Sender)
}

func (h *SearchHandler) Query(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	q := c.Query("q")
	if q == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "q is required")
	}
	pagination := GetPaginationParams(c)

	messages, total, err := h.search.SearchQuery(c.Context(), userID, q, pagination.Page, pagination.Limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"messages": messages, "total": total})
}

func (h *SearchHandler) Sender(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	sender := c.Query("sender")
	if sender == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "sender is required")
	}
	pagination := GetPaginationParams(c)

	messages, total, err := h.search.SearchSender(c.Context(), userID, sender, pagination.Page, pagination.Limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"messages": messages, "total": total})
}
