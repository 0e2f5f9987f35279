package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/orchestrator"
	"hackcbs/vectorgate/internal/startup"
)

const pineconeProbeName = "pinecone"

var (
	errIndexNotReady = errors.New("index not ready")
	errSpecMismatch  = errors.New("existing index does not match configured spec")
)

// indexAPI is the subset of *pinecone.Client used for index management.
// Tests inject a fake; production uses the SDK client directly.
type indexAPI interface {
	ListIndexes(ctx context.Context) ([]*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
}

// PineconeClient ensures the configured serverless index exists and reports
// Pinecone control-plane health. All calls go through the circuit breaker.
type PineconeClient struct {
	api          indexAPI
	name         string
	spec         config.IndexSpec
	waitReady    bool
	readyTimeout time.Duration
	pollInterval time.Duration
	strictSpec   bool
	cb           *gobreaker.CircuitBreaker
}

// NewPineconeClient builds an authenticated Pinecone client. No network call
// is made here; the API key is first used by EnsureIndex or Probe.
// pollInterval is the delay between readiness checks.
func NewPineconeClient(cfg config.PineconeConfig, pollInterval time.Duration, cb *gobreaker.CircuitBreaker) (*PineconeClient, error) {
	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}

	pc, err := pinecone.NewClient(params)
	if err != nil {
		return nil, startup.Wrap(startup.KindConnectivity, "creating pinecone client", err)
	}

	return newPineconeClient(pc, cfg, pollInterval, cb), nil
}

func newPineconeClient(api indexAPI, cfg config.PineconeConfig, pollInterval time.Duration, cb *gobreaker.CircuitBreaker) *PineconeClient {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &PineconeClient{
		api:          api,
		name:         cfg.IndexName,
		spec:         cfg.Index,
		waitReady:    cfg.WaitReady,
		readyTimeout: cfg.ReadyTimeout,
		pollInterval: pollInterval,
		strictSpec:   cfg.StrictSpec,
		cb:           cb,
	}
}

// EnsureIndex creates the index if it is not in the account's index list.
// An existing index is reused as-is; its dimension and metric are only
// compared against the configured spec. Errors are tagged: listing failures
// as connectivity, creation and readiness failures as resource creation.
func (c *PineconeClient) EnsureIndex(ctx context.Context) (*orchestrator.IndexResult, error) {
	res, err := c.cb.Execute(func() (any, error) {
		return c.ensure(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, startup.Wrap(startup.KindConnectivity, "pinecone", fmt.Errorf("circuit open: %w", err))
		}
		return nil, err
	}
	return res.(*orchestrator.IndexResult), nil
}

func (c *PineconeClient) ensure(ctx context.Context) (*orchestrator.IndexResult, error) {
	exists, err := c.indexExists(ctx)
	if err != nil {
		return nil, startup.Wrap(startup.KindConnectivity, "listing indexes", err)
	}

	created := false
	if !exists {
		slog.InfoContext(ctx, "creating pinecone index",
			"index", c.name,
			"dimension", c.spec.Dimension,
			"metric", c.spec.Metric,
			"cloud", c.spec.Cloud,
			"region", c.spec.Region,
		)
		_, err := c.api.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
			Name:      c.name,
			Dimension: c.spec.Dimension,
			Metric:    pinecone.IndexMetric(c.spec.Metric),
			Cloud:     pinecone.Cloud(c.spec.Cloud),
			Region:    c.spec.Region,
		})
		switch {
		case err == nil:
			created = true
		case isAlreadyExists(err):
			// Another replica created it between our list and create calls.
			slog.InfoContext(ctx, "pinecone index already created by another instance", "index", c.name)
		default:
			return nil, startup.Wrap(startup.KindResourceCreation, "creating index "+c.name, err)
		}
	}

	idx, err := c.describe(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.checkSpec(ctx, idx); err != nil {
		return nil, err
	}

	return toIndexResult(idx, created), nil
}

func (c *PineconeClient) indexExists(ctx context.Context) (bool, error) {
	indexes, err := c.api.ListIndexes(ctx)
	if err != nil {
		return false, err
	}
	for _, idx := range indexes {
		if idx != nil && idx.Name == c.name {
			return true, nil
		}
	}
	return false, nil
}

func (c *PineconeClient) describe(ctx context.Context) (*pinecone.Index, error) {
	if c.waitReady {
		return c.awaitReady(ctx)
	}
	idx, err := c.api.DescribeIndex(ctx, c.name)
	if err != nil {
		return nil, startup.Wrap(startup.KindConnectivity, "describing index "+c.name, err)
	}
	return idx, nil
}

// awaitReady polls DescribeIndex until the index reports ready, the ready
// timeout elapses or ctx is done.
func (c *PineconeClient) awaitReady(ctx context.Context) (*pinecone.Index, error) {
	b := retry.NewConstant(c.pollInterval)
	if c.readyTimeout > 0 {
		b = retry.WithMaxDuration(c.readyTimeout, b)
	}

	var ready *pinecone.Index
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		idx, err := c.api.DescribeIndex(ctx, c.name)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("describing index: %w", err))
		}
		if idx.Status == nil || !idx.Status.Ready {
			state := "unknown"
			if idx.Status != nil {
				state = string(idx.Status.State)
			}
			slog.DebugContext(ctx, "waiting for pinecone index", "index", c.name, "state", state)
			return retry.RetryableError(fmt.Errorf("%w: state %s", errIndexNotReady, state))
		}
		ready = idx
		return nil
	})
	if err != nil {
		return nil, startup.Wrap(startup.KindResourceCreation, "waiting for index "+c.name, err)
	}
	return ready, nil
}

func (c *PineconeClient) checkSpec(ctx context.Context, idx *pinecone.Index) error {
	if idx.Dimension == c.spec.Dimension && string(idx.Metric) == c.spec.Metric {
		return nil
	}

	if c.strictSpec {
		return startup.Wrap(startup.KindResourceCreation, "checking index "+c.name,
			fmt.Errorf("%w: dimension %d metric %s, want dimension %d metric %s",
				errSpecMismatch, idx.Dimension, idx.Metric, c.spec.Dimension, c.spec.Metric))
	}

	slog.WarnContext(ctx, "existing pinecone index does not match configured spec",
		"index", c.name,
		"dimension", idx.Dimension,
		"metric", string(idx.Metric),
		"want_dimension", c.spec.Dimension,
		"want_metric", c.spec.Metric,
	)
	return nil
}

// Probe lists indexes to verify the API key and control-plane reachability.
// A missing index is not a failure here.
func (c *PineconeClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		if _, err := c.api.ListIndexes(ctx); err != nil {
			return nil, fmt.Errorf("list indexes: %w", err)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return orchestrator.ProbeResult{
			Name:      pineconeProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return orchestrator.ProbeResult{
		Name:      pineconeProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

func toIndexResult(idx *pinecone.Index, created bool) *orchestrator.IndexResult {
	res := &orchestrator.IndexResult{
		Name:      idx.Name,
		Host:      idx.Host,
		Dimension: idx.Dimension,
		Metric:    string(idx.Metric),
		Created:   created,
		Ready:     idx.Status != nil && idx.Status.Ready,
	}
	if idx.Spec != nil && idx.Spec.Serverless != nil {
		res.Cloud = string(idx.Spec.Serverless.Cloud)
		res.Region = idx.Spec.Serverless.Region
	}
	return res
}

// isAlreadyExists reports whether a create call was rejected with HTTP 409
// because the index already exists.
func isAlreadyExists(err error) bool {
	var pe *pinecone.PineconeError
	return errors.As(err, &pe) && pe.Code == http.StatusConflict
}
