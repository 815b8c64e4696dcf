// File: pkg/intercept/fixtures.go
package intercept

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Fixture is one canned response in a fixture file. Either URL (absolute) or
// Path (joined onto the server host) selects the request. When JSON is set it
// is encoded as the body and the content type defaults to application/json.
// The config loader may lowercase map keys inside JSON; use Body for payloads with
// case sensitive keys.
type Fixture struct {
	URL         string            `mapstructure:"url" yaml:"url,omitempty"`
	Path        string            `mapstructure:"path" yaml:"path,omitempty"`
	Status      int               `mapstructure:"status" yaml:"status,omitempty"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	ContentType string            `mapstructure:"content_type" yaml:"content_type,omitempty"`
	Body        string            `mapstructure:"body" yaml:"body,omitempty"`
	JSON        interface{}       `mapstructure:"json" yaml:"json,omitempty"`
}

// FixtureResolver serves responses loaded from fixtures by exact URL match.
type FixtureResolver struct {
	responses map[string]Response
}

// NewFixtureResolver compiles fixtures against serverHost. Later fixtures
// for the same URL replace earlier ones.
func NewFixtureResolver(serverHost string, fixtures []Fixture) (*FixtureResolver, error) {
	f := &FixtureResolver{responses: make(map[string]Response, len(fixtures))}
	for i, fx := range fixtures {
		target, err := fx.target(serverHost)
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		resp, err := fx.response()
		if err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, target, err)
		}
		f.responses[target] = resp
	}
	return f, nil
}

// LoadFixtures reads a YAML, JSON or TOML file with a top level "fixtures"
// list. A leading ~ in path is expanded to the home directory.
func LoadFixtures(path, serverHost string) (*FixtureResolver, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand fixture path %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read fixture file %s: %w", expanded, err)
	}

	var fixtures []Fixture
	if err := v.UnmarshalKey("fixtures", &fixtures); err != nil {
		return nil, fmt.Errorf("could not decode fixtures in %s: %w", expanded, err)
	}
	return NewFixtureResolver(serverHost, fixtures)
}

func (f *FixtureResolver) Resolve(_ context.Context, url string) (*Response, error) {
	resp, ok := f.responses[url]
	if !ok {
		return nil, nil
	}
	out := resp.Clone()
	return &out, nil
}

// Len reports how many URLs the resolver answers.
func (f *FixtureResolver) Len() int { return len(f.responses) }

func (fx Fixture) target(serverHost string) (string, error) {
	switch {
	case fx.URL != "" && fx.Path != "":
		return "", fmt.Errorf("url and path are mutually exclusive")
	case fx.URL != "":
		return fx.URL, nil
	case fx.Path != "":
		return strings.TrimSuffix(serverHost, "/") + "/" + strings.TrimPrefix(fx.Path, "/"), nil
	default:
		return "", fmt.Errorf("one of url or path is required")
	}
}

func (fx Fixture) response() (Response, error) {
	resp := Response{
		Status:      fx.Status,
		Headers:     fx.Headers,
		ContentType: fx.ContentType,
	}
	if fx.JSON != nil {
		if fx.Body != "" {
			return Response{}, fmt.Errorf("body and json are mutually exclusive")
		}
		raw, err := json.ConfigCompatibleWithStandardLibrary.Marshal(fx.JSON)
		if err != nil {
			return Response{}, fmt.Errorf("could not encode json body: %w", err)
		}
		resp.Body = raw
		if resp.ContentType == "" {
			resp.ContentType = "application/json"
		}
		return resp, nil
	}
	if fx.Body != "" {
		resp.Body = []byte(fx.Body)
	}
	return resp, nil
}
