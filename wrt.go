// Package wrt is the top-level Runtime API: it decodes and instantiates
// WebAssembly modules, drives their execution through internal/engine, and
// exposes a fuel-metered, pausable/resumable call surface plus
// checkpoint/restore. Every limit the runtime honors — memory budgets,
// stack depths, decode ceilings — is fixed at construction through
// RuntimeConfig's fluent `With*` builder.
package wrt

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/async"
	rescomp "github.com/avrabe/wrt/internal/component"
	"github.com/avrabe/wrt/internal/engine"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/substrate"
)

// ComponentId identifies one instantiated module/component within a single
// Runtime. It is generated by a per-runtime atomic counter, not a
// process-wide one: two Runtimes in the same process must not be able to
// collide or be confused by sharing an ID space.
type ComponentId uint64

// RuntimeConfig configures a Runtime before construction. Use NewRuntimeConfig
// to obtain one with sane defaults, then chain the With* methods; each
// returns a new, independent config, so sharing a base config between
// runtimes never aliases mutable state.
type RuntimeConfig struct {
	memoryBudgetBytes  uint
	engineLimits       engine.Limits
	decodeLimits       DecodeLimits
	maxConcurrentAsync int64
	maxResourceHandles uint
	verificationLevel  substrate.VerificationLevel
	logger             *logrus.Logger
	hostModules        map[string]HostModule
}

// DecodeLimits mirrors internal/wasmbinary.Limits without exposing that
// package's internals through the public API surface.
type DecodeLimits struct {
	MaxTypes, MaxFunctions, MaxTables, MaxMemories, MaxGlobals uint32
	MaxExports, MaxElements, MaxDataSegs, MaxImports           uint32
}

// HostFunction is a host-implemented import.
type HostFunction func(args []api.Value) ([]api.Value, error)

// HostModule is a named collection of host functions importable under a
// single module name. A plain map suffices: there is no code-generation
// step to support reflection-based host bindings.
type HostModule map[string]HostFunction

// NewRuntimeConfig returns a RuntimeConfig with conservative, deterministic
// defaults: engine.DefaultLimits, a 64MiB memory budget split via
// substrate.NewStandardBudgetLayout, and MaxConcurrentExecutions-bounded
// async scheduling.
func NewRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		memoryBudgetBytes:  64 * 1024 * 1024,
		engineLimits:       engine.DefaultLimits,
		decodeLimits:       DecodeLimits{MaxTypes: 4096, MaxFunctions: 4096, MaxTables: 16, MaxMemories: 1, MaxGlobals: 4096, MaxExports: 4096, MaxElements: 1024, MaxDataSegs: 1024, MaxImports: 4096},
		maxConcurrentAsync: async.MaxConcurrentExecutions,
		maxResourceHandles: 1024,
		verificationLevel:  substrate.VerificationLevelStandard,
		logger:             logrus.New(),
		hostModules:        map[string]HostModule{},
	}
}

// WithVerificationLevel sets how densely runtime integrity checks run
// (checkpoint checksum verification at restore, sampling gates).
// VerificationLevelNone is rejected at NewRuntime: ASIL-B builds require at
// least Sampling.
func (c RuntimeConfig) WithVerificationLevel(l substrate.VerificationLevel) RuntimeConfig {
	c.verificationLevel = l
	return c
}

// WithMaxResourceHandles bounds how many live Component Model resource
// handles a single component instance
// may hold at once.
func (c RuntimeConfig) WithMaxResourceHandles(n uint) RuntimeConfig {
	c.maxResourceHandles = n
	return c
}

// WithMemoryBudget sets the total byte ceiling split across the standard
// operand-stack/call-frame/linear-memory/table/decoded-module budgets.
func (c RuntimeConfig) WithMemoryBudget(bytes uint) RuntimeConfig {
	c.memoryBudgetBytes = bytes
	return c
}

// WithEngineLimits overrides the interpreter's own bookkeeping limits.
func (c RuntimeConfig) WithEngineLimits(l engine.Limits) RuntimeConfig {
	c.engineLimits = l
	return c
}

// WithMaxConcurrentAsyncExecutions bounds how many async executions
// (internal/async.Engine) may be live at once.
func (c RuntimeConfig) WithMaxConcurrentAsyncExecutions(n int64) RuntimeConfig {
	c.maxConcurrentAsync = n
	return c
}

// WithLogger installs a custom logrus logger (decode warnings, traps, and
// async scheduling events are logged through it at Debug/Warn level).
func (c RuntimeConfig) WithLogger(l *logrus.Logger) RuntimeConfig {
	c.logger = l
	return c
}

// WithHostModule registers a named set of host functions importable by
// module name. Calling it twice with the same name replaces the prior set
// (last registration wins at instantiation time).
func (c RuntimeConfig) WithHostModule(name string, mod HostModule) RuntimeConfig {
	clone := make(map[string]HostModule, len(c.hostModules)+1)
	for k, v := range c.hostModules {
		clone[k] = v
	}
	clone[name] = mod
	c.hostModules = clone
	return c
}

// component is a Runtime's bookkeeping for one instantiated module.
type component struct {
	interp      *engine.Interpreter
	interceptor *intercept.LinkInterceptor
	resources   *rescomp.ResourceTable
	name        string

	// fuel is the default allotment installed via Runtime.SetFuel, consumed
	// in place across Invoke/Step calls that pass no fuel of their own. nil
	// means unmetered.
	fuel *uint64
}

// Runtime owns every component instantiated through it, a per-runtime
// ComponentId counter, and the shared async scheduler those components'
// calls may suspend into. A Runtime is safe for concurrent Instantiate
// calls; concurrent calls against the *same* ComponentId are not
// serialized by Runtime itself — each component's interpreter is
// single-threaded by design, so that obligation falls on the caller.
type Runtime struct {
	config RuntimeConfig
	logger *logrus.Logger

	mu         sync.Mutex
	nextID     uint64
	components map[ComponentId]*component

	budgets *substrate.StandardBudgetLayout
	memPool substrate.MemoryProvider

	async *async.Engine
}

// NewRuntime builds a Runtime from config, carving its memory budgets and
// preparing (but not yet populating) its async scheduler.
func NewRuntime(config RuntimeConfig) (*Runtime, error) {
	if config.verificationLevel == substrate.VerificationLevelNone {
		return nil, api.NewError(api.ErrorCategoryValidation, api.CodeCorruption,
			"verification level None is not permitted; the minimum is Sampling")
	}
	layout, err := substrate.NewStandardBudgetLayout(config.memoryBudgetBytes)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		config:     config,
		logger:     config.logger,
		components: make(map[ComponentId]*component),
		budgets:    layout,
		memPool:    substrate.NewStaticPool(layout.LinearMemory.Limit(), layout.LinearMemory),
	}
	rt.async = async.NewEngine(rt, config.maxConcurrentAsync)
	return rt, nil
}

func (rt *Runtime) allocID() ComponentId {
	return ComponentId(atomic.AddUint64(&rt.nextID, 1))
}

// Stats is a point-in-time snapshot of runtime-wide counters, exposed via
// Runtime.Stats.
type Stats struct {
	ComponentsInstantiated int
	MemoryBudgetBytes      uint
	MemoryBudgetUsed       uint
	AsyncStats             async.Stats
}

// Stats returns a snapshot of the runtime's resource usage and async
// scheduler counters.
func (rt *Runtime) Stats() Stats {
	rt.mu.Lock()
	n := len(rt.components)
	rt.mu.Unlock()
	b := rt.budgets
	used := b.OperandStack.Current() + b.CallFrames.Current() +
		b.LinearMemory.Current() + b.Tables.Current() + b.DecodedModule.Current()
	return Stats{
		ComponentsInstantiated: n,
		MemoryBudgetBytes:      b.Root.Limit(),
		MemoryBudgetUsed:       used,
		AsyncStats:             rt.async.Stats(),
	}
}
