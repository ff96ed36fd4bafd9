package openai

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/pkg/llms/openai/internal/openaiclient"
)

const (
	TokenEnvVarName   = "OPENAI_API_KEY"  //nolint:gosec
	BaseURLEnvVarName = "OPENAI_BASE_URL" //nolint:gosec
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	httpClient   openaiclient.Doer
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the OpenAI API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the OpenAI model to the client.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the base
// url is read from the OPENAI_BASE_URL environment variable, falling back to
// the public API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization passes the OpenAI organization to the client.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithHTTPClient allows setting a custom HTTP client. If not set, the default
// value is http.DefaultClient.
func WithHTTPClient(client openaiclient.Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

func newClient(opts ...Option) (*options, *openaiclient.Client, error) {
	options := &options{
		token:   os.Getenv(TokenEnvVarName),
		baseURL: os.Getenv(BaseURLEnvVarName),
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.token) == 0 {
		return options, nil, ErrMissingToken
	}
	if options.model == "" {
		return options, nil, errors.New("openai: model is required")
	}

	c, err := openaiclient.New(options.model, options.token, options.baseURL, options.organization, options.httpClient)
	return options, c, err
}
