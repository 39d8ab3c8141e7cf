package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cssdeps/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
	// SourcesLimit bounds total size of processed sources copied into report.
	SourcesLimit int64 `yaml:"sources_limit" validate:"gte=0"`
}

// Prepare creates initialized empty reporter.
func (conf *ReporterConfig) Prepare() (*Report, error) {

	r := &Report{entries: make(map[string]entry), room: conf.SourcesLimit}

	if f, err := os.Create(conf.Destination); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

type entryKind int

const (
	entryData entryKind = iota // produced during the run
	entryFile                  // archived as it is when report is closed (logs)
	entryCopy                  // snapshot in temporary directory
)

func (k entryKind) String() string {
	switch k {
	case entryData:
		return "data"
	case entryFile:
		return "file"
	default:
		return "copy"
	}
}

type entry struct {
	kind     entryKind
	original string
	actual   string
	stamp    time.Time
	data     []byte
	files    int
	size     int64
}

// Report accumulates debug information: results and traces produced during
// the run, log files archived at the end and snapshots of configuration and
// processed sources taken at the time they were read.
// NOTE: presently not to be used concurrently!
type Report struct {
	entries map[string]entry
	// temporary directories holding snapshots, removed on Close
	temps []string
	// room left for source snapshots
	room    int64
	skipped []string
	file    *os.File
}

// Close writes the report archive and removes snapshots.
func (r *Report) Close() error {
	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return nil
	}
	defer func() {
		for _, dir := range r.temps {
			os.RemoveAll(dir)
		}
		r.temps = nil
	}()
	if r.file == nil {
		return nil
	}
	defer r.file.Close()
	return r.finalize()
}

// Name returns name of underlying file.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store saves path to file or directory to be put in the final archive later.
func (r *Report) Store(name, path string) {
	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return
	}

	if old, exists := r.entries[name]; exists && old.original != path {
		// Somewhere I do not know what I am doing.
		panic(fmt.Sprintf("Attempt to overwrite file in the report for [%s]: was %s, now %s", name, old.original, path))
	}

	e := entry{
		kind:     entryFile,
		original: path,
		actual:   path,
	}
	if p, err := filepath.Abs(path); err == nil {
		e.actual = p
	}
	r.entries[name] = e
}

// StoreData saves binary data to be put in the final archive later as a file
// under requested name. Same source could be processed more than once (from
// different archives for example), so colliding names are versioned. Actual
// name is returned.
func (r *Report) StoreData(name string, data []byte) string {
	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return ""
	}

	name = r.unique(name)
	r.entries[name] = entry{
		kind:  entryData,
		data:  data,
		size:  int64(len(data)),
		stamp: time.Now(),
	}
	return name
}

// StoreCopy makes a copy (at the time of a call) of the file or directory to
// be put in the final archive later.
func (r *Report) StoreCopy(name, path string) error {
	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return nil
	}
	_, err := r.snapshot(name, path, nil, -1)
	return err
}

// StoreSources makes a copy of processed sources: a single file or files
// under directory accepted by keep (called with slash separated path relative
// to directory). Total size of all source copies is bounded by
// configuration, files which do not fit are only listed in the manifest.
// Number of copied files is returned.
func (r *Report) StoreSources(name, path string, keep func(rel string) bool) (int, error) {
	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return 0, nil
	}
	e, err := r.snapshot(name, path, keep, r.room)
	if err != nil {
		return 0, err
	}
	r.room -= e.size
	return e.files, nil
}

// unique versions colliding names with a counter keeping extension intact.
func (r *Report) unique(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, exists := r.entries[name]; !exists {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// snapshot copies path into temporary directory. Negative limit means no
// limit. Nothing is recorded when no file was copied.
func (r *Report) snapshot(name, path string, keep func(string) bool, limit int64) (entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return entry{}, err
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return entry{}, fmt.Errorf("unable to copy '%s': not a file or directory", path)
	}

	dir, err := os.MkdirTemp("", misc.GetAppName()+"-r-")
	if err != nil {
		return entry{}, err
	}
	r.temps = append(r.temps, dir)

	e := entry{kind: entryCopy, original: path, actual: dir, stamp: time.Now()}
	fits := func(p string, size int64) bool {
		if limit >= 0 && e.size+size > limit {
			r.skipped = append(r.skipped, p)
			return false
		}
		return true
	}

	if info.Mode().IsRegular() {
		if !fits(abs, info.Size()) {
			return e, nil
		}
		e.actual = filepath.Join(dir, filepath.Base(abs))
		if err := copyFile(e.actual, abs, info); err != nil {
			return entry{}, err
		}
		e.files, e.size = 1, info.Size()
	} else {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				// directories are recreated as needed, links and devices are ignored
				return nil
			}
			rel, err := filepath.Rel(abs, p)
			if err != nil {
				return err
			}
			if keep != nil && !keep(filepath.ToSlash(rel)) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !fits(p, fi.Size()) {
				return nil
			}
			if err := copyFile(filepath.Join(dir, rel), p, fi); err != nil {
				return err
			}
			e.files++
			e.size += fi.Size()
			return nil
		})
		if err != nil {
			return entry{}, err
		}
	}

	if e.files > 0 {
		r.entries[r.unique(name)] = e
	}
	return e, nil
}

// copyFile copies src to dst preserving modification time.
func copyFile(dst, src string, info fs.FileInfo) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// finalize creates the final archive (report) with all previously stored items.
func (r *Report) finalize() error {

	arc := zip.NewWriter(r.file)
	defer arc.Close()

	t := time.Now()

	names, manifest := r.manifest(t)
	if err := saveFile(arc, "MANIFEST", t, manifest); err != nil {
		return err
	}

	// in the same order as in manifest
	for _, name := range names {
		e := r.entries[name]
		if e.kind == entryData {
			if err := saveFile(arc, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}

		// ignoring absent files, log may be never created
		info, err := os.Stat(e.actual)
		if err != nil {
			continue
		}
		if info.IsDir() {
			err = saveDir(arc, name, e.actual)
		} else if info.Mode().IsRegular() {
			err = saveLocalFile(arc, name, e.actual, info.ModTime())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// manifest lists report entries sorted by name followed by sources which did
// not fit into report.
func (r *Report) manifest(now time.Time) ([]string, *bytes.Buffer) {
	stamp := func(t time.Time) string {
		if t.IsZero() {
			t = now
		}
		return t.UTC().Format(time.UnixDate)
	}

	buf := new(bytes.Buffer)
	names := slices.Sorted(maps.Keys(r.entries))
	for _, name := range names {
		e := r.entries[name]
		switch e.kind {
		case entryData:
			fmt.Fprintf(buf, "%s\t%s\t%s\t%d bytes\n", stamp(e.stamp), name, e.kind, e.size)
		case entryFile:
			fmt.Fprintf(buf, "%s\t%s\t%s\t%s\n", stamp(e.stamp), name, e.kind, e.actual)
		default:
			fmt.Fprintf(buf, "%s\t%s\t%s\t%s : %d file(s), %d bytes\n", stamp(e.stamp), name, e.kind, e.original, e.files, e.size)
		}
	}
	for _, p := range r.skipped {
		fmt.Fprintf(buf, "%s\t-\tskipped\t%s : over sources limit\n", stamp(now), p)
	}
	return names, buf
}

func saveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return nil
}

func saveLocalFile(dst *zip.Writer, name, path string, t time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return saveFile(dst, name, t, f)
}

// saveDir puts every regular file under dir into archive rooted at name.
func saveDir(dst *zip.Writer, name, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return saveLocalFile(dst, filepath.ToSlash(filepath.Join(name, rel)), path, info.ModTime())
	})
}
