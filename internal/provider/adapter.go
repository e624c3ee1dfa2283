package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/azerion/cloudledger/internal/partition"
)

// Credentials carries the explicit secret material for one fetch. Adapters
// never read ambient credential state; everything they need arrives here.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	ProjectID       string
	Region          string
	Extra           map[string]string
}

// FetchAdapter pulls raw billing rows for one resource key over one window.
// Implementations talk to the vendor export APIs; the pipeline only depends
// on this interface.
type FetchAdapter interface {
	Provider() canonicaldomain.Provider
	Fetch(ctx context.Context, resourceKey string, window partition.Window, creds Credentials) ([]canonicaldomain.RawRow, error)
}

// SecretSource resolves a job's secret path to credentials.
type SecretSource interface {
	Resolve(ctx context.Context, path string) (Credentials, error)
}

var (
	ErrUnknownProvider = errors.New("unknown_provider")
	ErrSecretNotFound  = errors.New("secret_not_found")
)

// Registry indexes the wired fetch adapters by provider.
type Registry struct {
	adapters map[canonicaldomain.Provider]FetchAdapter
}

func NewRegistry(adapters []FetchAdapter) *Registry {
	indexed := make(map[canonicaldomain.Provider]FetchAdapter, len(adapters))
	for _, a := range adapters {
		indexed[a.Provider()] = a
	}
	return &Registry{adapters: indexed}
}

// Lookup returns the adapter for the given provider.
func (r *Registry) Lookup(p canonicaldomain.Provider) (FetchAdapter, error) {
	adapter, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return adapter, nil
}

// envSecretSource maps a secret path to environment variables using the path
// as a prefix, e.g. path "AWS_BILLING" reads AWS_BILLING_ACCESS_KEY_ID.
// Swappable for a real secret backend behind the same interface.
type envSecretSource struct{}

func NewEnvSecretSource() SecretSource { return envSecretSource{} }

func (envSecretSource) Resolve(_ context.Context, path string) (Credentials, error) {
	prefix := strings.ToUpper(strings.TrimSpace(path))
	if prefix == "" {
		return Credentials{}, fmt.Errorf("%w: empty secret path", ErrSecretNotFound)
	}

	creds := Credentials{
		AccessKeyID:     os.Getenv(prefix + "_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv(prefix + "_SECRET_ACCESS_KEY"),
		ProjectID:       os.Getenv(prefix + "_PROJECT_ID"),
		Region:          os.Getenv(prefix + "_REGION"),
	}
	if creds.AccessKeyID == "" && creds.ProjectID == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	return creds, nil
}
