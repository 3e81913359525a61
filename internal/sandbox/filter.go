package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

var errDisallowed = errors.New("component disallowed")

// Namespaces whose types a mod component may not be, or hold fields of.
var disallowedNamespaces = []string{
	"System.IO",
	"System.Net",
	"System.Reflection",
	"System.Diagnostics",
	"System.Security",
	"System.Threading",
	"System.Runtime.InteropServices",
}

// Substrings of dangerous concrete type names.
var disallowedTypeKeywords = []string{
	"File",
	"FileStream",
	"Directory",
	"Process",
	"Socket",
	"WebClient",
	"HttpClient",
	"NetworkStream",
	"TcpClient",
	"UdpClient",
}

type Reason string

const (
	ReasonExcluded    Reason = "sandbox_excluded"
	ReasonNamespace   Reason = "namespace"
	ReasonTypeKeyword Reason = "type_keyword"
	ReasonField       Reason = "field"
	// ReasonFilterError is only used when the filter fails closed.
	ReasonFilterError Reason = "filter_error"
)

type Decision struct {
	Remove bool
	Reason Reason
	Detail string
}

// Removal records one destroyed component.
type Removal struct {
	Node   string `json:"node"`
	Type   string `json:"type"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type Report struct {
	Inspected int
	Removed   []Removal
	// Errors counts step failures, recovered panics included.
	Errors int
}

// Metrics receives filter outcomes. Implementations must be safe to call
// with any reason string.
type Metrics interface {
	ComponentRemoved(reason string)
	FilterError(step string)
}

type step struct {
	name string
	run  func(*scene.Component) (Decision, error)
}

// Filter decides, per component, whether it may stay in a loaded package.
type Filter struct {
	reg        *Registry
	logger     log.Logger
	metrics    Metrics
	failClosed bool
	steps      []step
}

type Option func(*Filter)

func WithLogger(l log.Logger) Option { return func(f *Filter) { f.logger = log.OrNop(l) } }

func WithMetrics(m Metrics) Option { return func(f *Filter) { f.metrics = m } }

// FailClosed makes a failing check remove the component instead of
// treating the failure as no violation.
func FailClosed(on bool) Option { return func(f *Filter) { f.failClosed = on } }

func New(reg *Registry, opts ...Option) *Filter {
	if reg == nil {
		reg = NewRegistry()
	}
	f := &Filter{reg: reg, logger: log.Nop()}
	for _, o := range opts {
		o(f)
	}
	f.steps = []step{
		{"marker", f.checkMarker},
		{"namespace", checkNamespace},
		{"type_keyword", checkTypeKeyword},
		{"fields", f.checkFields},
	}
	return f
}

// Check runs the steps in order and stops at the first removal. A step
// that errors or panics counts as no violation unless the filter fails
// closed. The returned error joins every step failure; it never means the
// decision is invalid.
func (f *Filter) Check(ctx context.Context, c *scene.Component) (Decision, error) {
	var errs []error
	for _, s := range f.steps {
		d, err := runStep(s, c)
		if err != nil {
			errs = append(errs, err)
			f.logger.Warn(ctx, "component check failed",
				"type", c.TypeName, "step", s.name, "err", err, "fail_closed", f.failClosed)
			if f.metrics != nil {
				f.metrics.FilterError(s.name)
			}
			if f.failClosed {
				return Decision{Remove: true, Reason: ReasonFilterError, Detail: err.Error()}, errors.Join(errs...)
			}
			continue
		}
		if d.Remove {
			return d, errors.Join(errs...)
		}
	}
	return Decision{}, errors.Join(errs...)
}

func countJoined(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}

func runStep(s step, c *scene.Component) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Newf("panic in %s check: %v", s.name, r)
		}
	}()
	return s.run(c)
}

// Apply checks every component under root, inactive nodes included, and
// destroys the ones that fail. Destruction happens before the tree is
// attached anywhere, so removed behavior never runs.
func (f *Filter) Apply(ctx context.Context, root *scene.Node) Report {
	var rep Report
	root.Walk(func(n *scene.Node) {
		for _, c := range n.Components() {
			rep.Inspected++
			d, err := f.Check(ctx, c)
			if err != nil {
				rep.Errors += countJoined(err)
			}
			if !d.Remove {
				continue
			}
			c.Destroy()
			rm := Removal{Node: n.Path(), Type: c.TypeName, Reason: d.Reason, Detail: d.Detail}
			rep.Removed = append(rep.Removed, rm)
			f.logger.Error(ctx, errDisallowed, "removed component",
				"node", rm.Node, "type", rm.Type, "reason", string(rm.Reason), "detail", rm.Detail)
			if f.metrics != nil {
				f.metrics.ComponentRemoved(string(d.Reason))
			}
		}
	})
	return rep
}

// unregistered types carry no marker; they also have no behavior to run
func (f *Filter) checkMarker(c *scene.Component) (Decision, error) {
	if t, ok := f.reg.Lookup(c.TypeName); ok && t.SandboxExcluded {
		return Decision{Remove: true, Reason: ReasonExcluded}, nil
	}
	return Decision{}, nil
}

func checkNamespace(c *scene.Component) (Decision, error) {
	ns := c.Namespace()
	if ns == "" {
		return Decision{}, nil
	}
	if p, ok := deniedNamespace(ns); ok {
		return Decision{Remove: true, Reason: ReasonNamespace, Detail: p}, nil
	}
	return Decision{}, nil
}

func checkTypeKeyword(c *scene.Component) (Decision, error) {
	if k, ok := typeKeyword(c.TypeName); ok {
		return Decision{Remove: true, Reason: ReasonTypeKeyword, Detail: k}, nil
	}
	return Decision{}, nil
}

func (f *Filter) checkFields(c *scene.Component) (Decision, error) {
	t, ok := f.reg.Lookup(c.TypeName)
	if !ok {
		return Decision{}, xerrors.Mark(xerrors.Newf("no field schema for %s", c.TypeName), ErrUnknownType)
	}
	for _, fi := range t.Fields {
		if _, bad := deniedNamespace(fi.Namespace()); bad {
			return fieldDecision(fi), nil
		}
		if _, bad := typeKeyword(fi.TypeName); bad {
			return fieldDecision(fi), nil
		}
	}
	return Decision{}, nil
}

func fieldDecision(fi FieldInfo) Decision {
	return Decision{Remove: true, Reason: ReasonField, Detail: fmt.Sprintf("%s %s", fi.TypeName, fi.Name)}
}

// prefix match, so System.IOExtras is denied along with System.IO.Ports
func deniedNamespace(ns string) (string, bool) {
	for _, p := range disallowedNamespaces {
		if strings.HasPrefix(ns, p) {
			return p, true
		}
	}
	return "", false
}

func typeKeyword(name string) (string, bool) {
	for _, k := range disallowedTypeKeywords {
		if strings.Contains(name, k) {
			return k, true
		}
	}
	return "", false
}
