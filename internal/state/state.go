// Package state implements the workflow state machine of spec.md §4.I: a
// pure, cooperative scheduler over internal/graph's dependency graph. The
// director (internal/director) owns one State per workflow invocation and
// drives it by alternating Step (advance whatever can advance without
// external execution, and report newly-runnable Call instances) and
// Complete (report a finished Call instance's outputs back in).
package state

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Status is a node instance's lifecycle stage (spec.md §4.I).
type Status int

const (
	Pending Status = iota
	Ready
	Running
	Succeeded
	Failed
)

// FailurePolicy controls what happens to sibling Running instances once one
// instance fails.
type FailurePolicy int

const (
	// FailFast requests that Running siblings be cancelled once draining.
	FailFast FailurePolicy = iota
	// FailSlow lets Running siblings finish naturally; only new jobs stop.
	FailSlow
)

// InstanceID locates one instance of a graph node: the node id plus the
// vector of scatter indices locating it within enclosing scatters.
type InstanceID struct {
	Node string
	Path []int
}

// Key returns a stable map key for an InstanceID.
func (id InstanceID) Key() string {
	if len(id.Path) == 0 {
		return id.Node
	}
	parts := make([]string, len(id.Path))
	for i, p := range id.Path {
		parts[i] = strconv.Itoa(p)
	}
	return id.Node + "[" + strings.Join(parts, ",") + "]"
}

// Instance is one node instance's current lifecycle state.
type Instance struct {
	ID     InstanceID
	Status Status

	// Value holds the resolved value for Decl, Gather and (post-Complete)
	// Call instances.
	Value values.Value
	// Skipped is true for an instance short-circuited by a false
	// Conditional predicate (spec.md §4.I: "immediately Succeeded with no
	// value").
	Skipped bool
	// CancelRequested is set on Running instances when FailFast draining
	// begins; the task driver observes it and kills its container.
	CancelRequested bool

	Err error
}

// State is the immutable snapshot driving one workflow invocation. Step and
// Complete never mutate the receiver; they return a new State.
type State struct {
	g       *graph.Graph
	ev      *eval.Evaluator
	baseEnv *env.Env
	policy  FailurePolicy

	instances map[string]*Instance
	envs      map[string]*env.Env
	// expansions records, per scatter instance key, the evaluated
	// collection length once the scatter has expanded.
	expansions map[string]int
	// conditionals records, per conditional instance key, the evaluated
	// predicate once resolved.
	conditionals map[string]bool

	cancelled bool
	failed    bool
	draining  bool
}

// New seeds a State with Pending instances for every top-level (outside any
// scatter/conditional) graph node. Nodes nested inside sections are created
// lazily as those sections expand.
func New(g *graph.Graph, ev *eval.Evaluator, baseEnv *env.Env, policy FailurePolicy) *State {
	s := &State{
		g:            g,
		ev:           ev,
		baseEnv:      baseEnv,
		policy:       policy,
		instances:    map[string]*Instance{},
		envs:         map[string]*env.Env{},
		expansions:   map[string]int{},
		conditionals: map[string]bool{},
	}
	for _, id := range g.IDs() {
		n, _ := g.Get(id)
		if n.Section == "" {
			inst := &Instance{ID: InstanceID{Node: id}, Status: Pending}
			s.instances[inst.ID.Key()] = inst
		}
	}
	return s
}

func (s *State) clone() *State {
	ns := &State{
		g: s.g, ev: s.ev, baseEnv: s.baseEnv, policy: s.policy,
		instances:    make(map[string]*Instance, len(s.instances)),
		envs:         make(map[string]*env.Env, len(s.envs)),
		expansions:   make(map[string]int, len(s.expansions)),
		conditionals: make(map[string]bool, len(s.conditionals)),
		cancelled:    s.cancelled, failed: s.failed, draining: s.draining,
	}
	for k, v := range s.instances {
		cp := *v
		ns.instances[k] = &cp
	}
	for k, v := range s.envs {
		ns.envs[k] = v
	}
	for k, v := range s.expansions {
		ns.expansions[k] = v
	}
	for k, v := range s.conditionals {
		ns.conditionals[k] = v
	}
	return ns
}

// Get returns a copy of an instance's current status, for inspection by the
// director/CLI (progress reporting, etc).
func (s *State) Get(id InstanceID) (Instance, bool) {
	inst, ok := s.instances[id.Key()]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Instances returns a copy of every instance currently tracked (every
// scatter/conditional expansion included), for progress reporting and
// failure inspection by the director/CLI.
func (s *State) Instances() []Instance {
	out := make([]Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, *inst)
	}
	return out
}

// Done reports whether every seeded instance has reached a terminal state.
func (s *State) Done() bool {
	for _, inst := range s.instances {
		if inst.Status == Pending || inst.Status == Ready || inst.Status == Running {
			return false
		}
	}
	return true
}

// Failed reports whether any instance has failed.
func (s *State) Failed() bool { return s.failed }

// Cancel marks the state cancelled and draining; Running instances are left
// for their drivers to observe and fail via Complete.
func (s *State) Cancel() *State {
	ns := s.clone()
	ns.cancelled = true
	ns.draining = true
	for _, inst := range ns.instances {
		if inst.Status == Running {
			inst.CancelRequested = true
		}
	}
	return ns
}

func (s *State) Cancelled() bool { return s.cancelled }

// Step advances every instance that can progress without external
// execution (Decl evaluation, Scatter expansion, Conditional resolution,
// Gather aggregation) to a fixed point, and returns the Call instances that
// just became runnable.
func (s *State) Step() (*State, []InstanceID, error) {
	ns := s.clone()
	var ready []InstanceID

	changed := true
	for changed {
		changed = false
		ids := make([]string, 0, len(ns.instances))
		for k := range ns.instances {
			ids = append(ids, k)
		}
		sort.Strings(ids)

		for _, k := range ids {
			inst := ns.instances[k]
			if inst.Status == Failed || inst.Status == Succeeded || inst.Status == Running {
				continue
			}
			node, ok := ns.g.Get(inst.ID.Node)
			if !ok {
				continue
			}

			if inst.Status == Pending {
				if node.Kind == graph.NodeGather {
					// A Gather's readiness is governed entirely by
					// resolveGather (it polls its section's expansion and
					// its inner instances, which live at a deeper scatter
					// path than the gather's own), not by the generic
					// path-truncated dependency check below.
					inst.Status = Ready
					changed = true
				} else {
					ok, err := ns.depsSatisfied(inst)
					if err != nil {
						inst.Status = Failed
						inst.Err = err
						ns.onFailure()
						changed = true
						continue
					}
					if ok {
						inst.Status = Ready
						changed = true
					} else {
						continue
					}
				}
			}

			switch node.Kind {
			case graph.NodeDecl:
				v, err := ns.ev.EvalDecl(node.Decl, ns.envFor(inst.ID.Path), nil)
				if err != nil {
					inst.Status = Failed
					inst.Err = err
					ns.onFailure()
				} else {
					inst.Value = v
					inst.Status = Succeeded
					ns.bind(inst.ID.Path, node.Name, v)
				}
				changed = true

			case graph.NodeCall:
				if ns.draining {
					continue
				}
				inst.Status = Running
				ready = append(ready, inst.ID)
				changed = true

			case graph.NodeScatter:
				changed = ns.expandScatter(node, inst) || changed

			case graph.NodeConditional:
				changed = ns.resolveConditional(node, inst) || changed

			case graph.NodeGather:
				done, val, err := ns.resolveGather(node, inst.ID.Path)
				if err != nil {
					inst.Status = Failed
					inst.Err = err
					ns.onFailure()
					changed = true
				} else if done {
					inst.Value = val
					inst.Status = Succeeded
					ns.bind(inst.ID.Path, node.Name, val)
					changed = true
				}
			}
		}
	}

	return ns, ready, nil
}

func (ns *State) expandScatter(node *graph.Node, inst *Instance) bool {
	v, err := ns.ev.Eval(node.Scatter.Expr, ns.envFor(inst.ID.Path), nil)
	if err != nil {
		inst.Status = Failed
		inst.Err = err
		ns.onFailure()
		return true
	}
	n := len(v.Arr)
	ns.expansions[inst.ID.Key()] = n
	for i := 0; i < n; i++ {
		childPath := append(append([]int{}, inst.ID.Path...), i)
		ck := pathKey(childPath)
		if _, exists := ns.envs[ck]; !exists {
			ns.envs[ck] = ns.envFor(inst.ID.Path).Bind(node.Name, v.Arr[i])
		}
		for _, childID := range ns.g.DirectChildren(node.ID) {
			cid := InstanceID{Node: childID, Path: childPath}
			if _, exists := ns.instances[cid.Key()]; !exists {
				ns.instances[cid.Key()] = &Instance{ID: cid, Status: Pending}
			}
		}
	}
	inst.Status = Succeeded
	return true
}

func (ns *State) resolveConditional(node *graph.Node, inst *Instance) bool {
	v, err := ns.ev.Eval(node.Conditional.Expr, ns.envFor(inst.ID.Path), nil)
	if err != nil {
		inst.Status = Failed
		inst.Err = err
		ns.onFailure()
		return true
	}
	ns.conditionals[inst.ID.Key()] = v.Bool
	for _, childID := range ns.g.DirectChildren(node.ID) {
		cid := InstanceID{Node: childID, Path: inst.ID.Path}
		if _, exists := ns.instances[cid.Key()]; !exists {
			ci := &Instance{ID: cid, Status: Pending}
			if !v.Bool {
				ci.Status = Succeeded
				ci.Skipped = true
			}
			ns.instances[cid.Key()] = ci
		}
	}
	inst.Status = Succeeded
	return true
}

func (ns *State) resolveGather(node *graph.Node, path []int) (bool, values.Value, error) {
	sectionID, _ := ns.g.SectionOf(node.GatherOf)
	section, ok := ns.g.Get(sectionID)
	if !ok {
		return false, values.Value{}, nil
	}

	switch section.Kind {
	case graph.NodeScatter:
		sk := (InstanceID{Node: sectionID, Path: path}).Key()
		n, expanded := ns.expansions[sk]
		if !expanded {
			return false, values.Value{}, nil
		}
		elems := make([]values.Value, n)
		var itemT *types.Type
		for i := 0; i < n; i++ {
			childPath := append(append([]int{}, path...), i)
			ci, ok := ns.instances[(InstanceID{Node: node.GatherOf, Path: childPath}).Key()]
			if !ok || (ci.Status != Succeeded && ci.Status != Failed) {
				return false, values.Value{}, nil
			}
			if ci.Status == Failed {
				return false, values.Value{}, ci.Err
			}
			elems[i] = ci.Value
			if itemT == nil {
				itemT = ci.Value.Type
			}
		}
		if itemT == nil {
			itemT = types.AnyT()
		}
		return true, values.NewArray(itemT, false, elems), nil

	case graph.NodeConditional:
		ck := (InstanceID{Node: sectionID, Path: path}).Key()
		cond, resolved := ns.conditionals[ck]
		if !resolved {
			return false, values.Value{}, nil
		}
		ci, ok := ns.instances[(InstanceID{Node: node.GatherOf, Path: path}).Key()]
		if !ok || (ci.Status != Succeeded && ci.Status != Failed) {
			return false, values.Value{}, nil
		}
		if ci.Status == Failed {
			return false, values.Value{}, ci.Err
		}
		if !cond || ci.Skipped {
			return true, values.Absent(types.AnyT()), nil
		}
		lifted := ci.Value
		if lifted.Type != nil {
			lifted.Type = lifted.Type.AsOptional()
		}
		return true, lifted, nil
	}
	return false, values.Value{}, nil
}

// depsSatisfied resolves each of inst's node-level dependencies down to the
// corresponding instance at the right path prefix (a dependency declared
// outside N enclosing scatters relative to inst's own node lives at a
// shorter path) and reports whether all have succeeded.
func (ns *State) depsSatisfied(inst *Instance) (bool, error) {
	for _, depNodeID := range ns.g.Dependencies(inst.ID.Node) {
		depPath := ns.truncateToScatterDepth(depNodeID, inst.ID.Path)
		di, ok := ns.instances[(InstanceID{Node: depNodeID, Path: depPath}).Key()]
		if !ok {
			return false, nil
		}
		if di.Status == Failed {
			return false, di.Err
		}
		if di.Status != Succeeded {
			return false, nil
		}
	}
	return true, nil
}

// scatterDepth counts the Scatter ancestors strictly enclosing a node (not
// counting the node itself, even if it is a Scatter) — the length of the
// path prefix at which that node's own instances live.
func (ns *State) scatterDepth(nodeID string) int {
	n, ok := ns.g.Get(nodeID)
	if !ok {
		return 0
	}
	d := 0
	sec := n.Section
	for sec != "" {
		sn, ok := ns.g.Get(sec)
		if !ok {
			break
		}
		if sn.Kind == graph.NodeScatter {
			d++
		}
		sec = sn.Section
	}
	return d
}

func (ns *State) truncateToScatterDepth(nodeID string, path []int) []int {
	d := ns.scatterDepth(nodeID)
	if d > len(path) {
		d = len(path)
	}
	return path[:d]
}

func (ns *State) bind(path []int, name string, v values.Value) {
	if name == "" {
		return
	}
	pk := pathKey(path)
	ns.envs[pk] = ns.envFor(path).Bind(name, v)
}

// EnvFor returns the environment a Call/Decl instance at path sees,
// including every enclosing scatter's per-iteration bindings. The
// director uses this to evaluate a Ready NodeCall instance's Call.Inputs
// before dispatching it to internal/task.
func (s *State) EnvFor(id InstanceID) *env.Env {
	return s.envFor(id.Path)
}

func (ns *State) envFor(path []int) *env.Env {
	pk := pathKey(path)
	if e, ok := ns.envs[pk]; ok {
		return e
	}
	if len(path) == 0 {
		return ns.baseEnv
	}
	return ns.envFor(path[:len(path)-1])
}

func pathKey(path []int) string {
	if len(path) == 0 {
		return ""
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func (ns *State) onFailure() {
	ns.failed = true
	ns.draining = true
	if ns.policy == FailFast {
		for _, inst := range ns.instances {
			if inst.Status == Running {
				inst.CancelRequested = true
			}
		}
	}
}

// RunningJobs returns the instances a task driver should consider killing
// (set once FailFast draining begins, or after Cancel).
func (s *State) RunningJobs() []InstanceID {
	var out []InstanceID
	for _, inst := range s.instances {
		if inst.Status == Running && inst.CancelRequested {
			out = append(out, inst.ID)
		}
	}
	return out
}

// Complete reports a Call instance's outcome: outputs on success, or execErr
// on failure (including Cancelled interruption).
func (s *State) Complete(id InstanceID, outputs map[string]values.Value, execErr error) *State {
	ns := s.clone()
	inst, ok := ns.instances[id.Key()]
	if !ok {
		return ns
	}
	if execErr != nil {
		inst.Status = Failed
		inst.Err = execErr
		ns.onFailure()
		return ns
	}

	node, _ := ns.g.Get(id.Node)
	var members []types.StructMember
	var fields []values.Field
	if node.Call != nil && node.Call.Task != nil {
		for _, o := range node.Call.Task.Outputs {
			members = append(members, types.StructMember{Name: o.Name, Type: o.Type})
			fields = append(fields, values.Field{Name: o.Name, Value: outputs[o.Name]})
		}
	}
	val := values.Value{Type: types.NewStruct(node.Call.Target, members), Fields: fields}
	inst.Value = val
	inst.Status = Succeeded
	ns.bind(id.Path, node.Name, val)
	return ns
}

// WorkflowOutputs collects the final bound values of every workflow output
// declaration, once Done.
func (s *State) WorkflowOutputs(prog *ast.Program) (map[string]values.Value, error) {
	out := map[string]values.Value{}
	for _, o := range prog.Workflow.Outputs {
		inst, ok := s.instances[(InstanceID{Node: "output-" + o.Name}).Key()]
		if !ok || inst.Status != Succeeded {
			return nil, errs.New(errs.KindEval, o.Pos, "workflow output %q did not resolve", o.Name)
		}
		out[o.Name] = inst.Value
	}
	return out, nil
}
