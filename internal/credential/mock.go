package credential

import (
	"context"

	"github.com/google/uuid"

	"github.com/ent0n29/avatar-tour/internal/persona"
)

// MockFetcher issues throwaway tokens for the in-process realtime mock.
type MockFetcher struct{}

func (MockFetcher) Fetch(ctx context.Context, p persona.Config) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	if err := p.Validate(); err != nil {
		return Credential{}, &CredentialError{Message: err.Error(), Err: err}
	}
	return Credential{Token: "mock-" + uuid.NewString()}, nil
}
