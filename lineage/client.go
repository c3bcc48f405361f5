package lineage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client runs cypher queries against a graph database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result is the list of records returned by a query.
type Result struct {
	Records []Record
}

// Record maps the returned keys to their values.
type Record map[string]any

// Options locates the graph database.
type Options struct {
	URI      string
	Database string
	Username string
	Password string
}

// ErrMissingURI is returned by Dial without a URI.
var ErrMissingURI = errors.New("graph URI is required")

// Dial connects to a Neo4j database over Bolt.
func Dial(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}
	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}
	return &neo4jClient{driver: driver, database: opts.Database}, nil
}

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

func (c *neo4jClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (c *neo4jClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, neo4j.AccessModeRead, cypher, params)
}

func (c *neo4jClient) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) (Result, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: mode})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return Result{}, err
	}
	var records []Record
	for res.Next(ctx) {
		rec := res.Record()
		record := make(Record, len(rec.Keys))
		for _, key := range rec.Keys {
			record[key], _ = rec.Get(key)
		}
		records = append(records, record)
	}
	if err := res.Err(); err != nil {
		return Result{}, err
	}
	return Result{Records: records}, nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Query is a query run by a Recorder.
type Query struct {
	Cypher string
	Params map[string]any
}

// Recorder is a Client that keeps the queries it is given and answers reads
// with queued results. It stands in for a database in tests and dry runs.
type Recorder struct {
	mu      sync.Mutex
	writes  []Query
	reads   []Query
	results []Result
	err     error
}

// Fail makes every following query return err.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Respond queues the result of the next read.
func (r *Recorder) Respond(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *Recorder) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Result{}, r.err
	}
	r.writes = append(r.writes, Query{Cypher: cypher, Params: maps.Clone(params)})
	return Result{}, nil
}

func (r *Recorder) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Result{}, r.err
	}
	r.reads = append(r.reads, Query{Cypher: cypher, Params: maps.Clone(params)})
	if len(r.results) == 0 {
		return Result{}, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res, nil
}

func (r *Recorder) VerifyConnectivity(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Close(context.Context) error { return nil }

// Writes returns the write queries run so far.
func (r *Recorder) Writes() []Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Query(nil), r.writes...)
}

// Reads returns the read queries run so far.
func (r *Recorder) Reads() []Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Query(nil), r.reads...)
}
