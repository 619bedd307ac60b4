// Package rules holds the connection rules that decide which link types may
// join two component types.
package rules

import (
	"archscore/internal/domain"
)

// Rule is a stateless predicate bound to exactly one link type.
type Rule interface {
	Name() string
	LinkType() domain.LinkType
	Description() string
	IsValid(source, target domain.Component, lt domain.LinkType) bool
}

type edge struct {
	from domain.ComponentType
	to   []domain.ComponentType
}

func from(src domain.ComponentType, targets ...domain.ComponentType) edge {
	return edge{from: src, to: targets}
}

// tableRule is an adjacency table over component types.
type tableRule struct {
	name  string
	lt    domain.LinkType
	desc  string
	allow map[domain.ComponentType]map[domain.ComponentType]bool
}

func newTableRule(name string, lt domain.LinkType, desc string, edges ...edge) *tableRule {
	r := &tableRule{
		name:  name,
		lt:    lt,
		desc:  desc,
		allow: make(map[domain.ComponentType]map[domain.ComponentType]bool),
	}
	for _, e := range edges {
		if r.allow[e.from] == nil {
			r.allow[e.from] = make(map[domain.ComponentType]bool)
		}
		for _, to := range e.to {
			r.allow[e.from][to] = true
		}
	}
	return r
}

func (r *tableRule) Name() string              { return r.name }
func (r *tableRule) LinkType() domain.LinkType { return r.lt }
func (r *tableRule) Description() string       { return r.desc }

func (r *tableRule) IsValid(source, target domain.Component, lt domain.LinkType) bool {
	if lt != r.lt {
		return false
	}
	return r.allow[source.Type][target.Type]
}

// Pairs lists the allowed (source, target) type pairs in declaration order.
func (r *tableRule) Pairs() [][2]domain.ComponentType {
	var out [][2]domain.ComponentType
	for _, src := range domain.ComponentTypes() {
		for _, dst := range domain.ComponentTypes() {
			if r.allow[src][dst] {
				out = append(out, [2]domain.ComponentType{src, dst})
			}
		}
	}
	return out
}

// Func adapts a predicate into a Rule.
type Func struct {
	RuleName string
	Type     domain.LinkType
	Text     string
	Fn       func(source, target domain.Component) bool
}

func (f Func) Name() string              { return f.RuleName }
func (f Func) LinkType() domain.LinkType { return f.Type }
func (f Func) Description() string       { return f.Text }

func (f Func) IsValid(source, target domain.Component, lt domain.LinkType) bool {
	if lt != f.Type || f.Fn == nil {
		return false
	}
	return f.Fn(source, target)
}

const (
	db      = domain.Database
	cache   = domain.Cache
	api     = domain.APIService
	queue   = domain.Queue
	storage = domain.Storage
	lb      = domain.LoadBalancer
	stream  = domain.StreamProcessor
	batch   = domain.BatchProcessor
	ext     = domain.ExternalService
	client  = domain.Client
)

// Defaults returns one fresh rule per link type, in link type order.
func Defaults() []Rule {
	return []Rule{
		APICallRule(),
		StreamRule(),
		ReplicationRule(),
		EtlPipelineRule(),
		BatchTransferRule(),
		EventFlowRule(),
		CacheLookupRule(),
		DatabaseQueryRule(),
	}
}

func APICallRule() Rule {
	return newTableRule("api-call", domain.APICall,
		"API_CALL: Client->LoadBalancer, Client->API, LoadBalancer->API, API->Database, API->Cache, API->Queue, API->Storage, API->API",
		from(client, lb, api),
		from(lb, api),
		from(api, db, cache, queue, api, storage),
	)
}

func StreamRule() Rule {
	return newTableRule("stream", domain.Stream,
		"STREAM: API->Queue, StreamProcessor->Queue, Queue->API, Queue->StreamProcessor, Queue->BatchProcessor, Queue->Database, API->API, StreamProcessor->StreamProcessor, StreamProcessor->Database, StreamProcessor->Storage",
		from(api, queue, api),
		from(stream, queue, stream, db, storage),
		from(queue, api, stream, batch, db),
	)
}

func ReplicationRule() Rule {
	return newTableRule("replication", domain.Replication,
		"REPLICATION: Database->Database, Cache->Cache, Storage->Storage, Queue->Queue (same-type replication for redundancy)",
		from(db, db),
		from(cache, cache),
		from(storage, storage),
		from(queue, queue),
	)
}

func EtlPipelineRule() Rule {
	return newTableRule("etl-pipeline", domain.EtlPipeline,
		"ETL_PIPELINE: Database->BatchProcessor, Storage->BatchProcessor, ExternalService->BatchProcessor, BatchProcessor->Database, BatchProcessor->Storage, BatchProcessor->ExternalService, Database->Database, Storage->Database, Database->Storage",
		from(batch, db, storage, ext),
		from(db, batch, db, storage),
		from(storage, batch, db),
		from(ext, batch),
	)
}

func BatchTransferRule() Rule {
	return newTableRule("batch-transfer", domain.BatchTransfer,
		"BATCH_TRANSFER: BatchProcessor->Storage, BatchProcessor->Database, Storage->Storage, Database->Storage, Storage->Database, ExternalService->Storage",
		from(batch, storage, db),
		from(storage, storage, db),
		from(db, storage),
		from(ext, storage),
	)
}

func EventFlowRule() Rule {
	return newTableRule("event-flow", domain.EventFlow,
		"EVENT_FLOW: API->Queue, StreamProcessor->Queue, Queue->API, Queue->StreamProcessor, Queue->BatchProcessor, API->API, Database->Queue (event-driven patterns)",
		from(api, queue, api),
		from(stream, queue),
		from(queue, api, stream, batch),
		from(db, queue),
	)
}

func CacheLookupRule() Rule {
	return newTableRule("cache-lookup", domain.CacheLookup,
		"CACHE_LOOKUP: API->Cache, LoadBalancer->Cache, StreamProcessor->Cache, Cache->Database, Cache->Storage (caching patterns)",
		from(api, cache),
		from(lb, cache),
		from(stream, cache),
		from(cache, db, storage),
	)
}

func DatabaseQueryRule() Rule {
	return newTableRule("database-query", domain.DatabaseQuery,
		"DATABASE_QUERY: API->Database, BatchProcessor->Database, StreamProcessor->Database, Database->Database, ExternalService->Database (read/write operations)",
		from(api, db),
		from(batch, db),
		from(stream, db),
		from(db, db),
		from(ext, db),
	)
}
