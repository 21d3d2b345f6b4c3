package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil
}

func (s Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	return RunRegister(ctx, req, s.deps.Register)
}

func (s Service) VerifyEmail(ctx context.Context, email, code string) (*AccountRecord, error) {
	return RunVerifyEmail(ctx, email, code, s.deps.Verify)
}

func (s Service) ResendOTP(ctx context.Context, email string) error {
	return RunResendOTP(ctx, email, s.deps.Verify)
}

func (s Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	return RunLogin(ctx, identifier, password, s.deps.Login)
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, tokenStr string) error {
	return RunLogout(ctx, tokenStr, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, tokenStr string) (int, error) {
	return RunLogoutAll(ctx, tokenStr, s.deps.Logout)
}

func (s Service) ForgotPassword(ctx context.Context, email string) error {
	return RunForgotPassword(ctx, email, s.deps.PasswordReset)
}

func (s Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return RunResetPassword(ctx, email, code, newPassword, s.deps.PasswordReset)
}
