// Package intervu is an embeddable interview session runtime for Go.
//
// Intervu tracks a candidate's progress through a directed graph of question
// nodes with strict consistency guarantees: a typed session lifecycle, an
// append-only turn/attempt ledger, and optimistic concurrency on every
// mutation. It runs fully in Go, supports multiple persistence backends, and
// integrates cleanly into existing request-handling tiers.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. GraphProvider
//  3. Observer
//  4. LocalInterview
//
// # Engine
//
// The Engine owns the only write path to sessions, turns and attempts. Each
// public operation is one atomic unit of work: either all of its effects
// commit together, or none do. Sessions move through a fixed lifecycle
// (CREATED, RUNNING, PAUSED, COMPLETED, FAILED) and every mutation after
// start requires the runtime version the caller last observed; a stale
// version fails with ErrConcurrentModification.
//
// The engine applies a uniform failure policy: any error inside an operation
// rolls the unit of work back, forces the session to FAILED in a separate
// commit, and propagates the original error. FAILED is absorbing — a
// conflicting request permanently fails the session rather than inviting a
// retry.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # GraphProvider
//
// The engine never stores question content. A GraphProvider resolves the
// start node, node content, and the node following a final answer. The
// pkg/graph package ships a Static provider built from a JSON document or a
// fluent Builder.
//
// # Observer
//
// Observers receive callbacks after each committed operation: session
// started, attempt recorded, turn advanced, completed, paused, resumed,
// failed. LoggingObserver writes structured logs via log/slog; BasicMetrics
// keeps atomic counters; NewCompositeObserver fans out to several observers.
//
// # LocalInterview
//
// LocalInterview bundles an in-memory engine with a graph and tracks the
// runtime version internally, for tests and single-process tools that walk
// one session from start to completion.
//
// # Quick Start
//
//	g := graph.NewBuilder("v1").
//	    Node("N0", graph.NodeSpec{Section: "algorithms", SkillID: "S1"}).
//	    Node("N1", graph.NodeSpec{Section: "systems", SkillID: "S2"}).
//	    Edge("N0", "N1").
//	    Start("N0").
//	    End("N1").
//	    MustBuild()
//
//	eng := intervu.NewInMemoryEngine(g)
//	sess, _ := eng.CreateSession(ctx, "", "candidate-1", g.Version())
//	sess, _ = eng.StartSession(ctx, sess.SessionID)
//	sess, _ = eng.SubmitAnswer(ctx, sess.SessionID, answer, true, sess.RuntimeVersion)
package intervu
