package observability

import (
	"context"
	"time"

	"taskapi/internal/docstore"
)

type instrumentedGateway struct {
	next    docstore.Gateway
	metrics *Metrics
	backend string
}

// InstrumentGateway wraps gw so every call is recorded under backend.
func InstrumentGateway(gw docstore.Gateway, metrics *Metrics, backend string) docstore.Gateway {
	return &instrumentedGateway{next: gw, metrics: metrics, backend: backend}
}

func (g *instrumentedGateway) observe(op string, start time.Time, err error) {
	g.metrics.RecordStoreOperation(op, g.backend, time.Since(start), err)
}

func (g *instrumentedGateway) Create(ctx context.Context, collection string, fields docstore.Fields) (id string, err error) {
	defer func(start time.Time) { g.observe("create", start, err) }(time.Now())
	return g.next.Create(ctx, collection, fields)
}

func (g *instrumentedGateway) Get(ctx context.Context, collection, id string) (doc *docstore.Document, err error) {
	defer func(start time.Time) { g.observe("get", start, err) }(time.Now())
	return g.next.Get(ctx, collection, id)
}

func (g *instrumentedGateway) Query(ctx context.Context, q docstore.Query) (docs []docstore.Document, err error) {
	defer func(start time.Time) { g.observe("query", start, err) }(time.Now())
	return g.next.Query(ctx, q)
}

func (g *instrumentedGateway) Update(ctx context.Context, collection, id, version string, fields docstore.Fields) (err error) {
	defer func(start time.Time) { g.observe("update", start, err) }(time.Now())
	return g.next.Update(ctx, collection, id, version, fields)
}

func (g *instrumentedGateway) Delete(ctx context.Context, collection, id, version string) (err error) {
	defer func(start time.Time) { g.observe("delete", start, err) }(time.Now())
	return g.next.Delete(ctx, collection, id, version)
}

func (g *instrumentedGateway) Close() error {
	return g.next.Close()
}
