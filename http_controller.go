package portal

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// SessionControllerRoutes holds the paths the controller mounts.
type SessionControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	Profile        string
	ChangePassword string
	AdminUsers     string
}

// SessionController exposes the session store over HTTP for the portal
// gateway. Handlers are plain fiber handlers; guard middleware is attached
// by the caller when mounting, so role policy stays out of this layer.
type SessionController struct {
	Debug  bool
	Logger Logger
	Store  *SessionStore
	Routes *SessionControllerRoutes
}

type SessionControllerOption func(*SessionController) *SessionController

func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Debug = debug
		return c
	}
}

func NewSessionController(store *SessionStore, opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Logger: defLogger{},
		Store:  store,
		Routes: &SessionControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			Profile:        "/profile",
			ChangePassword: "/profile/password",
			AdminUsers:     "/admin/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Store == nil {
		panic("Missing SessionStore in session controller...")
	}

	return c
}

// RegisterRoutes mounts the controller. authGuard protects the profile
// routes, adminGuard the user-management routes.
func (c *SessionController) RegisterRoutes(app fiber.Router, authGuard, adminGuard fiber.Handler) {
	app.Post(c.Routes.Login, c.LoginPost)
	app.Post(c.Routes.Logout, c.LogoutPost)
	app.Post(c.Routes.Register, c.RegistrationCreate)

	app.Get(c.Routes.Profile, authGuard, c.ProfileShow)
	app.Patch(c.Routes.Profile, authGuard, c.ProfileUpdate)
	app.Post(c.Routes.ChangePassword, authGuard, c.PasswordChange)

	app.Get(c.Routes.AdminUsers, adminGuard, c.AdminUsersIndex)
	app.Post(c.Routes.AdminUsers, adminGuard, c.AdminUsersCreate)
	app.Patch(c.Routes.AdminUsers+"/:id", adminGuard, c.AdminUsersUpdate)
	app.Delete(c.Routes.AdminUsers+"/:id", adminGuard, c.AdminUsersDelete)
}

func (c *SessionController) LoginPost(ctx *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := ctx.BodyParser(payload); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	if c.Debug {
		c.Logger.Debug("login attempt %s", print.MaybePrettyJSON(map[string]string{"email": payload.Email}))
	}

	if err := c.Store.Login(ctx.UserContext(), payload.Email, payload.Password); err != nil {
		return c.respondError(ctx, err)
	}

	identity, _ := c.Store.Identity()
	return ctx.Status(fiber.StatusOK).JSON(identity)
}

func (c *SessionController) LogoutPost(ctx *fiber.Ctx) error {
	c.Store.Logout()
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *SessionController) RegistrationCreate(ctx *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := ctx.BodyParser(payload); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	if err := c.Store.Register(ctx.UserContext(), *payload); err != nil {
		return c.respondError(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusCreated)
}

func (c *SessionController) ProfileShow(ctx *fiber.Ctx) error {
	identity, ok := c.Store.Identity()
	if !ok {
		return c.respondError(ctx, ErrNotAuthenticated)
	}
	return ctx.Status(fiber.StatusOK).JSON(identity)
}

type profileUpdateBody struct {
	Name     *string `json:"name"`
	LastName *string `json:"last_name"`
	Number   *string `json:"number"`
	UserType *string `json:"user_type"`
}

func (c *SessionController) ProfileUpdate(ctx *fiber.Ctx) error {
	body := new(profileUpdateBody)
	if err := ctx.BodyParser(body); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	patch := ProfileUpdatePayload{
		Name:     body.Name,
		LastName: body.LastName,
		Phone:    body.Number,
	}
	if body.UserType != nil {
		role := NormalizeRole(*body.UserType)
		patch.Role = &role
	}

	if err := c.Store.UpdateProfile(ctx.UserContext(), patch); err != nil {
		return c.respondError(ctx, err)
	}

	identity, _ := c.Store.Identity()
	return ctx.Status(fiber.StatusOK).JSON(identity)
}

func (c *SessionController) PasswordChange(ctx *fiber.Ctx) error {
	payload := new(ChangePasswordPayload)
	if err := ctx.BodyParser(payload); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	if err := c.Store.ChangePassword(
		ctx.UserContext(),
		payload.OldPassword,
		payload.NewPassword,
		payload.ConfirmPassword,
	); err != nil {
		return c.respondError(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusOK)
}

func (c *SessionController) AdminUsersIndex(ctx *fiber.Ctx) error {
	users, err := c.Store.SearchUsers(ctx.UserContext(), ctx.Query("search"))
	if err != nil {
		return c.respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusOK).JSON(users)
}

type adminUserBody struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
	LastName *string `json:"last_name"`
	Number   *string `json:"number"`
	UserType *string `json:"user_type"`
	School   *int64  `json:"skola"`
}

func (c *SessionController) AdminUsersCreate(ctx *fiber.Ctx) error {
	body := new(adminUserBody)
	if err := ctx.BodyParser(body); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	payload := AdminUserCreatePayload{
		Email:    body.Email,
		Password: body.Password,
		SchoolID: body.School,
	}
	if body.Name != nil {
		payload.Name = *body.Name
	}
	if body.LastName != nil {
		payload.LastName = *body.LastName
	}
	if body.Number != nil {
		payload.Phone = *body.Number
	}
	if body.UserType != nil {
		role := NormalizeRole(*body.UserType)
		payload.Role = &role
	}

	created, err := c.Store.CreateUser(ctx.UserContext(), payload)
	if err != nil {
		return c.respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

func (c *SessionController) AdminUsersUpdate(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil {
		return c.respondError(ctx, errors.New("invalid user id", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest))
	}

	body := new(adminUserBody)
	if err := ctx.BodyParser(body); err != nil {
		return c.respondError(ctx, errors.Wrap(err, errors.CategoryValidation, "failed to parse body").
			WithCode(errors.CodeBadRequest))
	}

	patch := AdminUserUpdatePayload{
		Name:     body.Name,
		LastName: body.LastName,
		Phone:    body.Number,
		SchoolID: body.School,
	}
	if body.UserType != nil {
		role := NormalizeRole(*body.UserType)
		patch.Role = &role
	}

	updated, err := c.Store.UpdateUser(ctx.UserContext(), userID, patch)
	if err != nil {
		return c.respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusOK).JSON(updated)
}

func (c *SessionController) AdminUsersDelete(ctx *fiber.Ctx) error {
	userID, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil {
		return c.respondError(ctx, errors.New("invalid user id", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest))
	}

	if err := c.Store.DeleteUser(ctx.UserContext(), userID); err != nil {
		return c.respondError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// respondError maps the error taxonomy onto HTTP. Field errors keep their
// shape so forms can surface them next to the matching inputs.
func (c *SessionController) respondError(ctx *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "unexpected error").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status < 400 || status > 599 {
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	}
	if fields, ok := ValidationFields(err); ok {
		body["fields"] = fields
	}

	c.Logger.Info("request failed: %s -> %d: %s", ctx.Path(), status, richErr.Message)

	return ctx.Status(status).JSON(body)
}
