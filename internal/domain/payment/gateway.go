package payment

import "context"

type InitializeRequest struct {
	Email       string
	Phone       string
	Amount      int64
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResponse carries the gateway's view of a reference. Status is the raw
// provider status ("success", "failed", "abandoned", "ongoing", ...).
type VerifyResponse struct {
	Success bool
	Amount  int64
	Status  string
	Message string
}

// Gateway is the mobile-money provider. Implementations must honour ctx
// deadlines and report a timeout as ErrGatewayTimeout.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResponse, error)
	ValidateSignature(rawBody []byte, signature string) bool
}

// finalFailureStatuses are provider statuses after which a charge will not
// succeed for the same reference.
var finalFailureStatuses = map[string]bool{
	"failed":    true,
	"abandoned": true,
	"reversed":  true,
}
