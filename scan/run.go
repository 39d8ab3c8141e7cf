// Package scan implements extract command: it finds stylesheets in files,
// directories and zip archives, extracts their dependencies and renders
// results.
package scan

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"cssdeps/archive"
	"cssdeps/config"
	"cssdeps/deps"
	"cssdeps/state"
)

// StdinName is source argument requesting stylesheet from standard input.
const StdinName = "-"

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("scan")

	sources := cmd.Args().Slice()
	if len(sources) == 0 {
		return errors.New("no input source has been specified")
	}

	out := env.Cfg.Output
	if cmd.IsSet("format") {
		if out.Format, err = config.ParseOutputFormat(cmd.String("format")); err != nil {
			log.Warn("Unknown output format requested, using configured one", zap.Stringer("format", env.Cfg.Output.Format), zap.Error(err))
			out.Format = env.Cfg.Output.Format
		}
	}
	if cmd.IsSet("template") {
		out.Template = cmd.String("template")
	}
	if out.Format == config.OutputFormatTemplate && len(out.Template) == 0 {
		return errors.New("output template is required for template output format")
	}
	if cmd.IsSet("keep-going") {
		out.KeepGoing = cmd.Bool("keep-going")
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	cp := cmd.String("force-zip-cp")
	if len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	if env.Rpt != nil {
		env.Tracer = deps.NewTracer()
		defer env.FlushTrace()
	}

	s, err := newScanner(env, log, cmd.Bool("strict"))
	if err != nil {
		return err
	}

	log.Info("Processing starting", zap.Strings("sources", sources), zap.Stringer("format", out.Format))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)), zap.Int("entries", len(s.entries)), zap.Int("failed", s.failed))
	}(time.Now())

	for _, src := range sources {
		if err := s.process(ctx, src); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Error("Unable to process source", zap.String("source", src), zap.Error(err))
			s.errs = multierr.Append(s.errs, err)
		}
	}

	doc := newDocument(s.entries)
	if err := output(env, doc, out, cmd.String("output")); err != nil {
		return err
	}

	if s.errs != nil && !out.KeepGoing {
		return fmt.Errorf("extraction failed for %d source(s): %w", len(multierr.Errors(s.errs)), s.errs)
	}
	return nil
}

// output renders document into destination file or stdout and keeps a copy
// in debug report.
func output(env *state.LocalEnv, doc *Document, out config.OutputConfig, dst string) (err error) {
	w := env.Stdout
	if len(dst) > 0 {
		f, ferr := os.Create(dst)
		if ferr != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", dst, ferr)
		}
		defer func() {
			if er := f.Close(); er != nil {
				err = multierr.Append(err, er)
			}
		}()
		w = f
	}

	if env.Rpt != nil {
		// report gets exactly what user sees
		var sb strings.Builder
		if err := render(&sb, doc, out.Format, out.Template); err != nil {
			return fmt.Errorf("unable to render results: %w", err)
		}
		env.Rpt.StoreData("result/extract"+out.Format.Ext(), []byte(sb.String()))
		_, err = io.WriteString(w, sb.String())
		return err
	}

	if err := render(w, doc, out.Format, out.Template); err != nil {
		return fmt.Errorf("unable to render results: %w", err)
	}
	return nil
}

// scanner keeps state of a single extract command run. Sources are
// processed sequentially.
type scanner struct {
	env     *state.LocalEnv
	log     *zap.Logger
	ext     *deps.Extractor
	dec     *decoder
	classes classifier
	strict  bool

	entries []Entry
	failed  int
	errs    error
}

func newScanner(env *state.LocalEnv, log *zap.Logger, strict bool) (*scanner, error) {
	dec, err := newDecoder(env.Cfg.Extraction.DefaultCharset)
	if err != nil {
		return nil, err
	}
	return &scanner{
		env:     env,
		log:     log,
		ext:     deps.NewExtractor(&env.Cfg.Extraction, log, deps.WithTracer(env.Tracer)),
		dec:     dec,
		classes: newClassifier(&env.Cfg.Extraction),
		strict:  strict,
	}, nil
}

// process determines the input type (stdin, directory, archive, or single
// file) and processes accordingly.
func (s *scanner) process(ctx context.Context, src string) (err error) {
	if src == StdinName {
		data, err := io.ReadAll(s.env.Stdin)
		if err != nil {
			return fmt.Errorf("unable to read standard input: %w", err)
		}
		s.env.Rpt.StoreData("source/stdin.css", data)
		s.processData(data, "<stdin>", kindStylesheet)
		return nil
	}

	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			s.snapshot(head, s.classes.wanted)
			if err := s.processDir(ctx, head); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			// we need to look inside to see if path makes sense
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if err := s.processArchive(ctx, head, filepath.ToSlash(tail), filepath.Base(head)); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		if len(tail) != 0 {
			return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}
		data, err := os.ReadFile(head)
		if err != nil {
			return fmt.Errorf("unable to read file: %w", err)
		}
		s.snapshot(head, nil)
		s.processData(data, filepath.Base(head), s.classes.explicit(head))
		break
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return nil
}

// snapshot keeps copy of stylesheets and markup under src in debug report.
// Archives are never copied.
func (s *scanner) snapshot(src string, keep func(rel string) bool) {
	if s.env.Rpt == nil {
		return
	}
	n, err := s.env.Rpt.StoreSources("source/"+filepath.Base(src), src, keep)
	if err != nil {
		s.log.Warn("Unable to store source copy in debug report", zap.String("source", src), zap.Error(err))
		return
	}
	s.log.Debug("Source copy stored in debug report", zap.String("source", src), zap.Int("files", n))
}

// processDir walks directory tree finding stylesheets, markup and archives
// and processes them.
func (s *scanner) processDir(ctx context.Context, dir string) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			s.log.Debug("Nothing to process", zap.String("dir", dir))
		}
	}()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err != nil {
			s.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator)))

		kind := s.classes.kind(path)
		if kind == kindNone {
			isArchive, err := isArchiveFile(path)
			if err != nil {
				s.log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
				return nil
			}
			if !isArchive {
				s.log.Debug("Skipping file, not recognized as stylesheet or archive", zap.String("file", path))
				return nil
			}
			count++
			if err := s.processArchive(ctx, path, "", rel); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
				s.errs = multierr.Append(s.errs, fmt.Errorf("%s: %w", path, err))
			}
			return nil
		}

		count++
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Error("Unable to read file", zap.String("file", path), zap.Error(err))
			s.addFailure(Entry{Source: rel}, err)
			return nil
		}
		s.processData(data, rel, kind)
		return nil
	})
}

// processArchive walks all files inside archive, finds stylesheets under
// "pathIn" and processes them. Source names are prefixed with "pathOut".
func (s *scanner) processArchive(ctx context.Context, arc, pathIn, pathOut string) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			s.log.Debug("Nothing to process", zap.String("archive", arc), zap.String("path", pathIn))
		}
	}()

	cp := s.env.CodePage

	return archive.Walk(arc, pathIn, s.classes.wanted, func(archive string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		count++

		pathInArchive := f.FileHeader.Name
		if cp != nil && f.FileHeader.NonUTF8 {
			// forcing zip file name encoding
			if n, err := cp.NewDecoder().String(pathInArchive); err == nil {
				pathInArchive = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				s.log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", pathInArchive), zap.Error(err))
			}
		}
		name := path.Join(pathOut, pathInArchive)

		data, err := readEntry(f)
		if err != nil {
			s.log.Error("Unable to read file in archive",
				zap.String("archive", archive), zap.String("file", f.FileHeader.Name), zap.Error(err))
			s.addFailure(Entry{Source: name}, err)
			return nil
		}
		s.processData(data, name, s.classes.kind(f.FileHeader.Name))
		return nil
	})
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// processData decodes source and extracts dependencies of every stylesheet
// it contains. Failures are recorded, never returned.
func (s *scanner) processData(data []byte, name string, kind sourceKind) {
	switch kind {
	case kindStylesheet:
		text, cs, err := s.dec.stylesheet(data)
		if err != nil {
			s.addFailure(Entry{Source: name}, err)
			return
		}
		s.extract(Entry{Source: name, Charset: cs}, text)

	case kindMarkup:
		text, cs, err := s.dec.markup(data)
		if err != nil {
			s.addFailure(Entry{Source: name}, err)
			return
		}
		frags, err := markupFragments(text, name)
		if err != nil {
			s.addFailure(Entry{Source: name, Charset: cs}, err)
			return
		}
		if len(frags) == 0 {
			s.log.Debug("No styles found in markup", zap.String("source", name))
		}
		for _, frag := range frags {
			s.extract(Entry{Source: frag.name, Inline: frag.inline, Charset: cs}, frag.text)
		}

	default:
		s.log.Debug("Skipping source", zap.String("source", name), zap.Stringer("kind", kind))
	}
}

func (s *scanner) extract(entry Entry, text string) {
	var (
		res *deps.Result
		err error
	)
	if entry.Inline {
		res, err = s.ext.ExtractInline(text, entry.Source)
	} else {
		res, err = s.ext.Extract(text, entry.Source)
	}
	if err != nil {
		s.log.Error("Unable to extract dependencies", zap.String("source", entry.Source), zap.Error(err))
		s.addFailure(entry, err)
		return
	}

	entry.Imports, entry.URLs, entry.Warnings = res.Imports, res.URLs, res.Warnings
	if werr := res.WarningsError(); werr != nil {
		if s.strict {
			s.addFailure(entry, fmt.Errorf("stylesheet has errors: %w", werr))
			return
		}
		s.log.Warn("Stylesheet has recoverable errors", zap.String("source", entry.Source), zap.Int("count", len(res.Warnings)))
	}
	s.log.Debug("Stylesheet processed", zap.String("source", entry.Source),
		zap.Strings("imports", entry.Imports), zap.Strings("urls", entry.URLs))
	s.entries = append(s.entries, entry)
}

func (s *scanner) addFailure(entry Entry, err error) {
	if entry.Imports == nil {
		entry.Imports = make([]string, 0)
	}
	if entry.URLs == nil {
		entry.URLs = make([]string, 0)
	}
	var derr *deps.Error
	if !errors.As(err, &derr) {
		err = fmt.Errorf("%s: %w", entry.Source, err)
	}
	entry.Error = err.Error()
	s.entries = append(s.entries, entry)
	s.failed++
	s.errs = multierr.Append(s.errs, err)
}
