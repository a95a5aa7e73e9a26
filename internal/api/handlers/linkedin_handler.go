package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/service"
	"github.com/winningsales/contenthub/pkg/utils"
)

type LinkedinHandler struct {
	ls  service.LinkedinService
	cfg config.Config
}

func NewLinkedinHandler(ls service.LinkedinService, cfg config.Config) *LinkedinHandler {
	return &LinkedinHandler{
		ls:  ls,
		cfg: cfg,
	}
}

// Connect redirects to LinkedIn's consent screen. The caller's session token
// travels as the OAuth state so the callback can recover the user.
func (h *LinkedinHandler) Connect(c *fiber.Ctx) error {
	authURL := h.ls.GetAuthURL(c.Context(), c.Query("state"))
	return c.Redirect(authURL)
}

func (h *LinkedinHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	if err := h.ls.Callback(c.Context(), code, userID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	return c.Redirect(h.cfg.FrontendURL+"?linkedin_status=success", fiber.StatusTemporaryRedirect)
}

func (h *LinkedinHandler) AccountInfo(c *fiber.Ctx) error {
	userID := GetUserID(c)

	account, exists, err := h.ls.AccountInfo(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to get linkedin account",
		})
	}
	if !exists {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"connected": false,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"connected":        true,
		"member_name":      account.MemberName,
		"token_expires_at": account.TokenExpiresAt,
	})
}

func (h *LinkedinHandler) Disconnect(c *fiber.Ctx) error {
	userID := GetUserID(c)

	if err := h.ls.Disconnect(c.Context(), userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect linkedin account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
