package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"mailmirror/adapter/out/provider/graph"
	"mailmirror/core/port/in"
	"mailmirror/core/port/out"
)

// AccountHandler links mailboxes to the sync engine (§4.7.1), grounded
// on worker_oauth_handler.go's Connect/Callback CSRF-guarded OAuth
// dance, reworked onto the two credential paths this spec supports: a
// direct IMAP app-password link, and a Microsoft Graph consent redirect
// that resolves to a token pair before handing off to OnboardingService.
type AccountHandler struct {
	onboarding in.OnboardingService
	accounts   in.AccountService
	graph      *graph.Adapter
	states     out.StateStore
}

func NewAccountHandler(onboarding in.OnboardingService, accounts in.AccountService, graphAdapter *graph.Adapter, states out.StateStore) *AccountHandler {
	return &AccountHandler{onboarding: onboarding, accounts: accounts, graph: graphAdapter, states: states}
}

const oauthStateTTL = 10 * time.Minute

func generateSecureState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secure state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Register mounts the JWT-protected account surface (linking, listing,
// mutation) under app.
func (h *AccountHandler) Register(app fiber.Router) {
	accounts := app.Group("/accounts")
	accounts.Post("/imap", h.LinkIMAP)
	accounts.Get("/graph/connect", h.GraphConnect)
	accounts.Get("/", h.List)
	accounts.Get("/:id", h.Get)
	accounts.Patch("/:id", h.Patch)
	accounts.Delete("/:id", h.Delete)
}

// RegisterPublic mounts the Microsoft redirect callback, which arrives
// with no bearer token and authenticates the request via the one-time
// CSRF state value instead.
func (h *AccountHandler) RegisterPublic(app fiber.Router) {
	app.Get("/accounts/graph/callback", h.GraphCallback)
}

// List backs GET /accounts.
func (h *AccountHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	accounts, err := h.accounts.List(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, accounts)
}

// Get backs GET /accounts/{id}.
func (h *AccountHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	account, err := h.accounts.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, account)
}

// Patch backs PATCH /accounts/{id}. MailAccount (§3) has no
// user-editable fields — folder set and watermarks are sync-engine
// owned — so this validates ownership and echoes the current record
// back, reserving the route for future account-level settings.
func (h *AccountHandler) Patch(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	account, err := h.accounts.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, account)
}

// Delete backs DELETE /accounts/{id}; the cascade to Messages is the
// schema's FOREIGN KEY ... ON DELETE CASCADE.
func (h *AccountHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if err := h.accounts.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"id": c.Params("id"), "deleted": true})
}

type linkIMAPRequest struct {
	Email       string `json:"email"`
	AppPassword string `json:"appPassword"`
}

func (h *AccountHandler) LinkIMAP(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req linkIMAPRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.AppPassword == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "email and appPassword are required")
	}

	account, err := h.onboarding.LinkIMAPAccount(c.Context(), userID, req.Email, req.AppPassword)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, account)
}

// GraphConnect issues the CSRF state and redirects to the Microsoft
// consent screen, mirroring the teacher's Connect handler.
func (h *AccountHandler) GraphConnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if h.graph == nil {
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "graph provider not configured")
	}

	random, err := generateSecureState()
	if err != nil {
		return InternalErrorResponse(c, err, "generate oauth state")
	}
	state := userID + ":" + random

	if h.states != nil {
		if err := h.states.Set(c.Context(), state, userID, oauthStateTTL); err != nil {
			return InternalErrorResponse(c, err, "store oauth state")
		}
	}

	return c.JSON(fiber.Map{"authUrl": h.graph.AuthCodeURL(state)})
}

// GraphCallback exchanges the authorization code for tokens and links
// the account, validating state exactly once via GetAndDelete so a
// replayed callback cannot complete twice.
func (h *AccountHandler) GraphCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "missing code or state")
	}

	var userID string
	if h.states != nil {
		value, ok, err := h.states.GetAndDelete(c.Context(), state)
		if err != nil || !ok {
			return ErrorResponse(c, fiber.StatusBadRequest, "invalid or expired state")
		}
		userID = value
	}
	if userID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid state")
	}

	accessToken, refreshToken, expiresIn, err := h.graph.ExchangeCode(c.Context(), code)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	// The consent screen does not return the signed-in mailbox address;
	// the client supplies it (it already has it from the redirect chain).
	account, err := h.onboarding.LinkGraphAccount(c.Context(), userID, c.Query("email"), accessToken, refreshToken, expiresIn)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, account)
}
