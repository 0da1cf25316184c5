package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"tabfold-mcp-server/internal/config"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed tabs.mg
var builtinRules []byte

// BuiltinRules returns the tab schema compiled into the binary.
func BuiltinRules() []byte {
	return append([]byte(nil), builtinRules...)
}

// Fact is one ground atom pushed into the engine by the tab observer.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult represents a binding of variables to values from a Mangle query.
type QueryResult map[string]interface{}

// Engine wraps the Mangle deductive database. Snapshot predicates are
// replaced wholesale on every refresh; everything else accumulates up to the
// buffer limit.
type Engine struct {
	cfg          config.MangleConfig
	mu           sync.RWMutex
	schemaLoaded bool

	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	// facts is the base (non-derived) fact buffer the store is rebuilt from.
	facts []Fact
	index map[string][]int

	subscriptions map[string][]chan WatchEvent
	subMu         sync.RWMutex
}

// WatchEvent is emitted when a watched predicate has facts after evaluation.
type WatchEvent struct {
	Predicate string    `json:"predicate"`
	Facts     []Fact    `json:"facts"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:           cfg,
		facts:         make([]Fact, 0, cfg.FactBufferLimit),
		index:         make(map[string][]int),
		store:         factstore.NewSimpleInMemoryStore(),
		subscriptions: make(map[string][]chan WatchEvent),
	}

	if !cfg.Enable {
		return e, nil
	}

	var src []byte
	if !cfg.DisableBuiltin {
		src = append(src, builtinRules...)
	}
	if cfg.SchemaPath != "" {
		extra, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		src = append(append(src, '\n'), extra...)
	}
	if len(bytes.TrimSpace(src)) == 0 {
		return e, nil
	}
	if err := e.LoadSchemaSource(src); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadSchema parses and analyzes a Mangle source file.
func (e *Engine) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	return e.LoadSchemaSource(data)
}

// LoadSchemaSource is LoadSchema for an in-memory program.
func (e *Engine) LoadSchemaSource(src []byte) error {
	sourceUnit, err := parse.Unit(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.programInfo = programInfo
	e.schemaLoaded = true
	return nil
}

// AddRule adds rules at runtime, analyzed against the loaded declarations.
func (e *Engine) AddRule(ruleSource string) error {
	if !e.cfg.Enable {
		return nil
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(ruleSource)))
	if err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existingDecls := make(map[ast.PredicateSym]ast.Decl)
	if e.programInfo != nil && e.programInfo.Decls != nil {
		for k, v := range e.programInfo.Decls {
			if v != nil {
				existingDecls[k] = *v
			}
		}
	}

	newProgramInfo, err := analysis.AnalyzeOneUnit(sourceUnit, existingDecls)
	if err != nil {
		return fmt.Errorf("analyze rule: %w", err)
	}

	if e.programInfo == nil {
		e.programInfo = newProgramInfo
		e.schemaLoaded = true
		return nil
	}
	for k, v := range newProgramInfo.Decls {
		e.programInfo.Decls[k] = v
	}
	if e.programInfo.IdbPredicates != nil {
		for k, v := range newProgramInfo.IdbPredicates {
			e.programInfo.IdbPredicates[k] = v
		}
	}
	e.programInfo.Rules = append(e.programInfo.Rules, newProgramInfo.Rules...)
	return nil
}

// AddFacts appends facts and re-evaluates the program.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if !e.cfg.Enable {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.facts = append(e.facts, facts...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		e.facts = e.facts[len(e.facts)-e.cfg.FactBufferLimit:]
		return e.rebuildLocked()
	}

	base := len(e.facts) - len(facts)
	for i, f := range facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], base+i)
		atom, err := e.factToAtom(f)
		if err != nil {
			log.Printf("warning: dropping fact %s: %v", f.Predicate, err)
			continue
		}
		e.store.Add(atom)
	}
	return e.evalLocked()
}

// ReplacePredicates drops every buffered fact of the given predicates and
// inserts facts in their place, so a refresh leaves no stale tabs behind.
func (e *Engine) ReplacePredicates(ctx context.Context, predicates []string, facts []Fact) error {
	if !e.cfg.Enable {
		return nil
	}

	drop := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		drop[p] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make([]Fact, 0, len(e.facts)+len(facts))
	for _, f := range e.facts {
		if !drop[f.Predicate] {
			kept = append(kept, f)
		}
	}
	e.facts = append(kept, facts...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		e.facts = e.facts[len(e.facts)-e.cfg.FactBufferLimit:]
	}
	return e.rebuildLocked()
}

// rebuildLocked recreates the store from the buffer. Derived facts from the
// previous evaluation go with it.
func (e *Engine) rebuildLocked() error {
	e.rebuildIndex()
	e.store = factstore.NewSimpleInMemoryStore()
	for _, f := range e.facts {
		atom, err := e.factToAtom(f)
		if err != nil {
			log.Printf("warning: dropping fact %s: %v", f.Predicate, err)
			continue
		}
		e.store.Add(atom)
	}
	return e.evalLocked()
}

func (e *Engine) evalLocked() error {
	if !e.schemaLoaded || e.programInfo == nil {
		return nil
	}
	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return fmt.Errorf("eval program: %w", err)
	}
	e.checkAndNotifyWatchers()
	return nil
}

// checkAndNotifyWatchers pushes the current facts of every watched predicate.
func (e *Engine) checkAndNotifyWatchers() {
	for _, predicate := range e.WatchPredicates() {
		facts := e.collectLocked(predicate)
		if len(facts) > 0 {
			e.notifySubscribers(predicate, facts)
		}
	}
}

// collectLocked reads base and derived facts for predicate from the store.
func (e *Engine) collectLocked(predicate string) []Fact {
	arity := e.arityOf(predicate)
	var query ast.Atom
	if arity >= 0 {
		args := make([]ast.BaseTerm, arity)
		for i := range args {
			args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
		}
		query = ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}
	} else {
		query = ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: -1}}
	}

	facts := make([]Fact, 0)
	_ = e.store.GetFacts(query, func(atom ast.Atom) error {
		facts = append(facts, e.atomToFact(atom))
		return nil
	})
	return facts
}

// arityOf looks the predicate up in the program, then in the buffer.
func (e *Engine) arityOf(predicate string) int {
	if e.programInfo != nil {
		for sym := range e.programInfo.Decls {
			if sym.Symbol == predicate {
				return sym.Arity
			}
		}
	}
	if idx, ok := e.index[predicate]; ok && len(idx) > 0 {
		return len(e.facts[idx[0]].Args)
	}
	return -1
}

// Subscribe registers a channel that receives the predicate's facts after
// every evaluation in which it has any.
func (e *Engine) Subscribe(predicate string, ch chan WatchEvent) string {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.subscriptions[predicate] = append(e.subscriptions[predicate], ch)
	return fmt.Sprintf("%s:%p", predicate, ch)
}

// Unsubscribe removes a channel from the subscription list for a predicate.
func (e *Engine) Unsubscribe(predicate string, ch chan WatchEvent) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	channels := e.subscriptions[predicate]
	for i, c := range channels {
		if c == ch {
			e.subscriptions[predicate] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
}

// notifySubscribers never blocks; full channels miss the event.
func (e *Engine) notifySubscribers(predicate string, facts []Fact) {
	e.subMu.RLock()
	channels := e.subscriptions[predicate]
	e.subMu.RUnlock()

	if len(channels) == 0 || len(facts) == 0 {
		return
	}

	event := WatchEvent{
		Predicate: predicate,
		Facts:     facts,
		Timestamp: time.Now(),
	}

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
}

// WatchPredicates returns a list of predicates that have active subscriptions.
func (e *Engine) WatchPredicates() []string {
	e.subMu.RLock()
	defer e.subMu.RUnlock()

	predicates := make([]string, 0, len(e.subscriptions))
	for p, chs := range e.subscriptions {
		if len(chs) > 0 {
			predicates = append(predicates, p)
		}
	}
	return predicates
}

// Query runs a single-atom query such as `misgrouped_tab(T, F, G).` and
// returns one binding per matching fact. Constants in the query filter.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(sourceUnit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := sourceUnit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if varArg, ok := arg.(ast.Variable); ok && varArg.Symbol != "_" {
				result[varArg.Symbol] = e.convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	if len(results) == 0 {
		results = append(results, e.queryBufferDirect(queryAtom.Predicate.Symbol, queryAtom.Args)...)
	}
	return results, nil
}

// queryBufferDirect matches base facts when the store lookup misses, for
// example when the query arity differs from the stored facts.
func (e *Engine) queryBufferDirect(predicate string, queryArgs []ast.BaseTerm) []QueryResult {
	results := make([]QueryResult, 0)

	for _, idx := range e.index[predicate] {
		if idx < 0 || idx >= len(e.facts) {
			continue
		}
		f := e.facts[idx]
		if len(f.Args) < len(queryArgs) {
			continue
		}

		result := make(QueryResult)
		matches := true
		for i, qArg := range queryArgs {
			if varArg, ok := qArg.(ast.Variable); ok {
				if varArg.Symbol != "_" {
					result[varArg.Symbol] = f.Args[i]
				}
			} else if constArg, ok := qArg.(ast.Constant); ok {
				if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", e.convertConstant(constArg)) {
					matches = false
					break
				}
			}
		}
		if matches {
			results = append(results, result)
		}
	}
	return results
}

// Evaluate re-runs the program and returns every fact of predicate.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}
	return e.collectLocked(predicate), nil
}

// FactsByPredicate returns buffered base facts of predicate.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices := e.index[predicate]
	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(e.facts) {
			results = append(results, e.facts[idx])
		}
	}
	return results
}

// Facts returns a shallow copy of buffered facts for debugging.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

// Ready reports whether the engine has a usable query context.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schemaLoaded || !e.cfg.Enable
}

func (e *Engine) factToAtom(f Fact) (ast.Atom, error) {
	if f.Predicate == "" {
		return ast.Atom{}, fmt.Errorf("empty predicate")
	}
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = e.toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}, nil
}

func (e *Engine) atomToFact(atom ast.Atom) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = e.convertConstant(arg)
	}
	return Fact{
		Predicate: atom.Predicate.Symbol,
		Args:      args,
		Timestamp: time.Now(),
	}
}

func (e *Engine) toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func (e *Engine) convertConstant(c ast.BaseTerm) interface{} {
	if c == nil {
		return nil
	}

	switch term := c.(type) {
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			if n, err := term.NumberValue(); err == nil {
				return n
			}
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}
