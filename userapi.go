package sessionx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Authentication service endpoints.
const (
	loginEndpoint    = "/api/user/login"
	profileEndpoint  = "/api/user/info"
	logoutEndpoint   = "/api/user/logout"
	registerEndpoint = "/api/user/register"
)

// Registration is the sign-up form.
type Registration struct {
	Username string `json:"username" validate:"required,account"`
	Password string `json:"password" validate:"required,min=6,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Nickname string `json:"nickname,omitempty"`
}

var accountPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{4,16}$`)

// UserAPI is the authentication service reached through a Client. It
// implements Authenticator and Revoker.
type UserAPI struct {
	client   *Client
	validate *validator.Validate
}

// NewUserAPI returns the authentication service client.
func NewUserAPI(client *Client) *UserAPI {
	v := validator.New()
	err := v.RegisterValidation("account", func(fl validator.FieldLevel) bool {
		return accountPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("sessionx: register account validation: %v", err))
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &UserAPI{client: client, validate: v}
}

// Login exchanges credentials for a session token and the caller's profile.
func (u *UserAPI) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return nil, withMessage(ErrCodeDomain, "Username and password are required", nil)
	}
	env, err := u.client.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   loginEndpoint,
		Body:   creds,
	})
	if err != nil {
		return nil, err
	}
	data, err := decodeProfile(env.Data)
	if err != nil {
		return nil, withMessage(ErrCodeDomain, "Unexpected login response", err)
	}
	token, _ := data["token"].(string)
	if token == "" {
		return nil, withMessage(ErrCodeDomain, "", ErrEmptyToken)
	}
	delete(data, "token")
	return &LoginResult{Token: token, Profile: data, Message: env.Message}, nil
}

// WhoAmI returns the profile of the session's principal.
func (u *UserAPI) WhoAmI(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := u.client.Do(ctx, Request{Method: http.MethodGet, Path: profileEndpoint}, &profile); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = Profile{}
	}
	return profile, nil
}

// Revoke ends the session on the server.
func (u *UserAPI) Revoke(ctx context.Context) error {
	return u.client.Do(ctx, Request{Method: http.MethodPost, Path: logoutEndpoint}, nil)
}

// Register creates an account. The form is checked locally with the rules
// the service enforces before anything is sent.
func (u *UserAPI) Register(ctx context.Context, reg Registration) (string, error) {
	if err := u.Validate(reg); err != nil {
		return "", err
	}
	env, err := u.client.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   registerEndpoint,
		Body:   reg,
	})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Validate checks a registration form.
func (u *UserAPI) Validate(reg Registration) error {
	err := u.validate.Struct(reg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return withMessage(ErrCodeDomain, "", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return withMessage(ErrCodeDomain, strings.Join(msgs, "; "), err)
}

func decodeProfile(data json.RawMessage) (Profile, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("payload is not an object")
	}
	return p, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "account":
		return "username must be 4-16 letters, digits or underscores"
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
