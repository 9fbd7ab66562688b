package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// CreateActorMessage is the provisioning request. A nil Permissions slice
// means "use the default template for the role".
type CreateActorMessage struct {
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone_number"`
	Password    string         `json:"password"`
	Role        string         `json:"role"`
	Permissions []Grant        `json:"permissions,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
}

func (e CreateActorMessage) Type() string { return "actor.create" }

// Validate will validate the payload. The email is checked in its stored
// form. Role semantics are checked by the Provisioner so they surface as
// dedicated errors.
func (e CreateActorMessage) Validate() error {
	e.Email = NormalizeEmail(e.Email)
	return validationFailure(validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Email, validation.Required, validation.Length(3, 320), is.Email),
		validation.Field(&e.Phone, PhoneNumber(DefaultPhoneRegion)),
		validation.Field(&e.Password, passwordRules...),
		validation.Field(&e.Role, validation.Required),
	))
}

// CreateActorHandler runs CreateActorMessage on behalf of a creator.
type CreateActorHandler struct {
	provisioner *Provisioner
}

func NewCreateActorHandler(p *Provisioner) *CreateActorHandler {
	return &CreateActorHandler{provisioner: p}
}

func (h *CreateActorHandler) Execute(ctx context.Context, creator *Actor, event CreateActorMessage, meta RequestMeta) (*Actor, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during actor creation",
		)
	default:
		return h.provisioner.CreateActor(ctx, creator, event, meta)
	}
}
