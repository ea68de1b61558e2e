package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/subsystem-go/radix"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// router implements subsystem.Router over a frozen radix tree of compiled pipelines.
type router struct {
	rt          *Runtime
	tree        *radix.Tree[*pipeline]
	state       *subsystem.State
	healthCheck []subsystem.Invocable[*subsystem.State, subsystem.Done]
}

func (r *router) Call(ctx context.Context, route string, input subsystem.Input, meta subsystem.Values) (*subsystem.CallContext, error) {
	p, ok := r.tree.Lookup(route)
	if !ok {
		return nil, fmt.Errorf("%w: %q", subsystem.ErrRouteNotFound, route)
	}

	return p.call(ctx, input, meta), nil
}

func (r *router) Has(route string) bool {
	return r.tree.Has(route)
}

func (r *router) Routes() []string {
	return r.tree.Keys()
}

// Healthcheck runs all health checks concurrently and collects every failure in registration order.
func (r *router) Healthcheck(ctx context.Context) subsystem.HealthReport {
	failures := make([]error, len(r.healthCheck))

	var group errgroup.Group
	for i, check := range r.healthCheck {
		group.Go(func() error {
			if _, err := invokeSafely(ctx, check, r.state); err != nil {
				failures[i] = err
				r.rt.logWarn(ctx, logMsgHealthCheckFailed, err, logAttrStage, check.Meta().String())
				r.rt.incrementCounter(ctx, metricHealthCheckFailure, map[string]string{"check": check.Meta().String()})
			}

			return nil
		})
	}

	_ = group.Wait()

	report := subsystem.HealthReport{Status: subsystem.HealthOK}
	for _, err := range failures {
		if err != nil {
			report.Errors = append(report.Errors, err)
		}
	}

	if len(report.Errors) > 0 {
		report.Status = subsystem.HealthKO
	}

	return report
}

var _ subsystem.Router = (*router)(nil)
