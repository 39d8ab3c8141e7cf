// Package deps extracts dependency references from stylesheet text: @import
// targets and url(...) references, in the order the stylesheet serializer
// visits them.
package deps

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssdeps/config"
	"cssdeps/css"
)

// ErrorKind tells which stage of extraction failed.
type ErrorKind int

const (
	ErrorKindParse ErrorKind = iota
	ErrorKindSerialize
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindParse:
		return "parse"
	case ErrorKindSerialize:
		return "serialize"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	ErrParse     = errors.New("unable to parse stylesheet")
	ErrSerialize = errors.New("unable to serialize stylesheet")
)

// Error is returned by extraction. Use errors.Is with ErrParse or
// ErrSerialize to check the kind and errors.As to get engine error details.
type Error struct {
	Kind     ErrorKind
	Filename string
	Err      error
}

func (e *Error) sentinel() error {
	if e.Kind == ErrorKindSerialize {
		return ErrSerialize
	}
	return ErrParse
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Filename != "" {
		msg = e.Filename + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

// Result holds dependencies found in a single stylesheet. Imports and URLs
// are never nil.
type Result struct {
	Imports      []string         `json:"imports" yaml:"imports"`
	URLs         []string         `json:"urls" yaml:"urls"`
	Dependencies []css.Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Warnings     []css.Warning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// WarningsError combines recovered parse errors into single error, nil if
// stylesheet was clean.
func (r *Result) WarningsError() error {
	if r == nil {
		return nil
	}
	var err error
	for _, w := range r.Warnings {
		err = multierr.Append(err, w)
	}
	return err
}

// Option configures Extractor.
type Option func(*Extractor)

// WithTracer makes extractor record every processed stylesheet.
func WithTracer(t *Tracer) Option {
	return func(e *Extractor) {
		e.tracer = t
	}
}

// Extractor runs parse and serialize passes of the css engine. It keeps no
// per call state and may be used concurrently unless it has a tracer.
type Extractor struct {
	log      *zap.Logger
	parser   *css.Parser
	tracer   *Tracer
	recovery bool
	depth    int
}

// NewExtractor creates extractor. When cfg is nil error recovery is on and
// default nesting limit is used.
func NewExtractor(cfg *config.ExtractionConfig, log *zap.Logger, opts ...Option) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{
		log:      log.Named("extractor"),
		parser:   css.NewParser(log),
		recovery: true,
		depth:    css.DefaultMaxNestingDepth,
	}
	if cfg != nil {
		e.recovery = cfg.ErrorRecovery
		e.depth = cfg.MaxNestingDepth
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor(nil, nil)

// Extract returns dependencies of stylesheet source. Optional filename is
// used only in diagnostics and placeholders.
func Extract(source string, filename ...string) (*Result, error) {
	return defaultExtractor.Extract(source, filename...)
}

// ExtractInline returns dependencies of a declaration list, for example
// content of html style attribute. Imports are always empty.
func ExtractInline(declarations string, filename ...string) (*Result, error) {
	return defaultExtractor.ExtractInline(declarations, filename...)
}

// Extract returns dependencies of stylesheet source.
func (e *Extractor) Extract(source string, filename ...string) (*Result, error) {
	return e.extract(source, first(filename), false)
}

// ExtractInline returns dependencies of a declaration list.
func (e *Extractor) ExtractInline(declarations string, filename ...string) (*Result, error) {
	return e.extract(declarations, first(filename), true)
}

func first(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (e *Extractor) extract(source, name string, inline bool) (res *Result, err error) {
	defer func(start time.Time) {
		// engine is third party code, one bad stylesheet must not bring the
		// whole program down
		if r := recover(); r != nil {
			e.log.Error("Extraction ended with panic",
				zap.String("source", name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res, err = nil, &Error{Kind: ErrorKindParse, Filename: name, Err: fmt.Errorf("engine panic: %v", r)}
		}
		if err != nil {
			e.tracer.traceFailure(name, err)
			return
		}
		e.log.Debug("Dependencies extracted",
			zap.String("source", name),
			zap.Int("imports", len(res.Imports)),
			zap.Int("urls", len(res.URLs)),
			zap.Int("warnings", len(res.Warnings)),
			zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	opts := css.ParserOptions{Filename: name, ErrorRecovery: e.recovery, MaxNestingDepth: e.depth}

	var sheet *css.Stylesheet
	if inline {
		sheet, err = e.parser.ParseInline(source, opts)
	} else {
		sheet, err = e.parser.Parse(source, opts)
	}
	if err != nil {
		return nil, &Error{Kind: ErrorKindParse, Filename: name, Err: err}
	}
	for _, w := range sheet.Warnings {
		e.log.Debug("Recovered from stylesheet error", zap.Stringer("at", w.Loc), zap.String("message", w.Message))
	}

	// imports stay in the output, they are needed to be reported in place
	out, err := sheet.ToCSS(css.PrinterOptions{AnalyzeDependencies: &css.DependencyOptions{RemoveImports: false}})
	if err != nil {
		return nil, &Error{Kind: ErrorKindSerialize, Filename: name, Err: err}
	}

	if res, err = partition(out.Dependencies); err != nil {
		return nil, &Error{Kind: ErrorKindSerialize, Filename: name, Err: err}
	}
	res.Warnings = sheet.Warnings

	e.tracer.traceSheet(name, sheet, out.Code, res)
	return res, nil
}

// partition splits dependencies by kind keeping their order.
func partition(deps []css.Dependency) (*Result, error) {
	if deps == nil {
		deps = make([]css.Dependency, 0)
	}
	res := &Result{
		Imports:      make([]string, 0),
		URLs:         make([]string, 0),
		Dependencies: deps,
	}
	for _, d := range deps {
		switch d.Kind {
		case css.DependencyImport:
			res.Imports = append(res.Imports, d.URL)
		case css.DependencyURL:
			res.URLs = append(res.URLs, d.URL)
		default:
			return nil, fmt.Errorf("unexpected dependency kind %d for %q", int(d.Kind), d.URL)
		}
	}
	return res, nil
}
