// Package fixture loads mock endpoints from YAML files.
//
// A fixture file lists mocks in match order:
//
//	mocks:
//	  - method: GET|HEAD
//	    url: https://api.example.com/users/{id}
//	    status: 200
//	    headers:
//	      X-Source: fixture
//	    json:
//	      id: "{id}"
//	  - url: "{anything}"
//	    status: 404
//	    body: no fixture for this URL
//
// Placeholders captured by the URL template are substituted into header
// values and the body.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/route"
)

// ErrInvalidFixture is returned for a fixture that cannot be turned into a
// mock endpoint.
var ErrInvalidFixture = errors.New("fixture: invalid mock")

// File is a parsed fixture file.
type File struct {
	Mocks []Mock `yaml:"mocks"`
}

// Mock describes one mock endpoint and the response it serves.
type Mock struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
	JSON    any               `yaml:"json"`
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", path, err)
	}
	return f, nil
}

// Parse parses fixture YAML and applies defaults.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	f.applyDefaults()
	return &f, nil
}

// applyDefaults fills in missing values with defaults.
func (f *File) applyDefaults() {
	for i := range f.Mocks {
		m := &f.Mocks[i]
		if m.Method == "" {
			m.Method = fluent.AnyMethod
		}
		if m.Status == 0 {
			m.Status = 200
		}
	}
}

// Endpoints compiles every mock, in file order.
func (f *File) Endpoints() ([]*fluent.MockEndpoint, error) {
	eps := make([]*fluent.MockEndpoint, 0, len(f.Mocks))
	for i, m := range f.Mocks {
		ep, err := m.Endpoint()
		if err != nil {
			return nil, fmt.Errorf("mock #%d: %w", i+1, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Register compiles every mock and adds it to d. Nothing is added when a
// mock fails to compile.
func (f *File) Register(d *fluent.Dispatcher) error {
	eps, err := f.Endpoints()
	if err != nil {
		return err
	}
	d.Add(eps...)
	return nil
}

// Endpoint compiles the mock.
func (m Mock) Endpoint() (*fluent.MockEndpoint, error) {
	if m.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidFixture)
	}
	if m.Status < 100 || m.Status > 999 {
		return nil, fmt.Errorf("%w: status %d out of range", ErrInvalidFixture, m.Status)
	}

	body := m.Body
	contentType := ""
	if m.JSON != nil {
		if m.Body != "" {
			return nil, fmt.Errorf("%w: body and json are mutually exclusive", ErrInvalidFixture)
		}
		data, err := json.Marshal(m.JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: encode json: %v", ErrInvalidFixture, err)
		}
		body = string(data)
		contentType = "application/json"
	}

	names := make([]string, 0, len(m.Headers))
	for name := range m.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	status := m.Status
	headers := m.Headers
	handler := func(_ *fluent.Request, p route.Params) (*fluent.Response, error) {
		resp := fluent.Reply(status, p.Expand(body))
		if contentType != "" {
			resp = resp.WithHeader("Content-Type", contentType)
		}
		for _, name := range names {
			resp = resp.WithHeader(name, p.Expand(headers[name]))
		}
		return resp, nil
	}

	return fluent.NewMockEndpoint(m.Method, m.URL, handler)
}
