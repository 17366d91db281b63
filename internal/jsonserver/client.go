// Package jsonserver reads the catalog from a json-server style HTTP API.
package jsonserver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/vendor-kart/internal/catalogjson"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
)

var _ catalog.Repository = (*Client)(nil)

// Client implements catalog.Repository over GET {base}/products.
type Client struct {
	base *url.URL
	http *http.Client
	tp   trace.TracerProvider
	opts catalogjson.Options
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Its transport is wrapped with
// tracing; the client itself is not modified.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTracerProvider traces outgoing requests with tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) { cl.tp = tp }
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts catalogjson.Options, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse catalog url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("catalog url %q: unsupported scheme", baseURL)
	}
	c := &Client{
		base: u,
		http: http.DefaultClient,
		opts: opts,
	}
	for _, o := range options {
		o(c)
	}

	hc := *c.http
	transport := hc.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	var otelOpts []otelhttp.Option
	if c.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(c.tp))
	}
	hc.Transport = otelhttp.NewTransport(transport, otelOpts...)
	c.http = &hc
	return c, nil
}

// List fetches every product.
func (c *Client) List(ctx context.Context) ([]catalog.Product, error) {
	var products []catalog.Product
	err := c.get(ctx, c.base.JoinPath("products"), func(d *jx.Decoder) error {
		var err error
		products, err = catalogjson.DecodeProducts(d, c.opts)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// GetByID fetches one product. It returns catalog.ErrNotFound on 404.
func (c *Client) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	// Dot segments would be cleaned out of the joined path.
	if id == "" || id == "." || id == ".." {
		return nil, errors.Wrapf(catalog.ErrNotFound, "product %q", id)
	}
	// JoinPath takes escaped elements.
	u := c.base.JoinPath("products", url.PathEscape(id))

	var p catalog.Product
	err := c.get(ctx, u, func(d *jx.Decoder) error {
		var err error
		p, err = catalogjson.DecodeProduct(d, c.opts)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Ping checks that the catalog API answers.
func (c *Client) Ping(ctx context.Context) error {
	u := c.base.JoinPath("products")
	u.RawQuery = url.Values{"_limit": {"1"}}.Encode()
	return c.get(ctx, u, func(d *jx.Decoder) error {
		return d.Skip()
	})
}

func (c *Client) get(ctx context.Context, u *url.URL, decode func(d *jx.Decoder) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return catalog.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := decode(jx.Decode(resp.Body, 4096)); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
