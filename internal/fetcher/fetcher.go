// Package fetcher loads tabular datasets from local files, HTTP(S), and FTP
// in CSV, XLSX, or JSON form.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/schema"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// ErrTooLarge is returned when a dataset exceeds the configured size limit.
var ErrTooLarge = eris.New("fetcher: dataset too large")

// Format is a dataset encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

// FormatFromName infers a format from a file name or URL path extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".zip":
		return FormatZIP, nil
	}
	return "", eris.Errorf("fetcher: cannot infer format from %q", name)
}

// FormatFromContentType maps an HTTP Content-Type onto a format. Unknown types
// return "".
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	switch ct {
	case "text/csv", "text/plain", "application/csv":
		return FormatCSV
	case "application/json":
		return FormatJSON
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX
	case "application/zip", "application/x-zip-compressed":
		return FormatZIP
	}
	return ""
}

// Options configures a Loader.
type Options struct {
	Delimiter  rune
	SheetName  string
	SheetIndex int
	// MaxBytes caps the size of a dataset read into memory.
	MaxBytes int64

	HTTP HTTPOptions
	FTP  FTPOptions
}

// Loader opens dataset sources and parses them into tables.
type Loader struct {
	opts Options
	http Fetcher
	ftp  Fetcher
}

// NewLoader creates a Loader with HTTP and FTP fetchers built from opts.
func NewLoader(opts Options) *Loader {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	return &Loader{
		opts: opts,
		http: NewHTTPFetcher(opts.HTTP),
		ftp:  NewFTPFetcher(opts.FTP),
	}
}

// Open returns a reader for src: a local path, an http(s) URL, or an ftp URL.
func (l *Loader) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	u, err := url.Parse(src)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return l.http.Download(ctx, src)
		case "ftp":
			return l.ftp.Download(ctx, src)
		case "file":
			src = u.Path
		}
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return f, nil
}

// Load reads src and parses it as format. An empty format is inferred from
// the source name.
func (l *Loader) Load(ctx context.Context, src string, format Format) (*schema.Table, error) {
	if format == "" {
		name := src
		if u, err := url.Parse(src); err == nil && u.Scheme != "" {
			name = u.Path
		}
		f, err := FormatFromName(name)
		if err != nil {
			return nil, err
		}
		format = f
	}

	rc, err := l.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := l.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", src)
	}

	t, err := l.Parse(ctx, data, format)
	if err != nil {
		return nil, err
	}
	zap.L().Info("fetcher: dataset loaded",
		zap.String("source", src),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
		zap.Int("rows", t.Len()),
	)
	return t, nil
}

// Parse decodes an in-memory dataset into a table.
func (l *Loader) Parse(ctx context.Context, data []byte, format Format) (*schema.Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = ReadCSV(ctx, bytes.NewReader(data), CSVOptions{Delimiter: l.opts.Delimiter, TrimSpace: true})
	case FormatXLSX:
		rows, err = ReadXLSX(data, XLSXOptions{SheetName: l.opts.SheetName, SheetIndex: l.opts.SheetIndex})
	case FormatJSON:
		rows, err = ReadJSONRecords(ctx, bytes.NewReader(data))
	case FormatZIP:
		name, inner, zerr := ExtractZIPSingle(data, l.opts.MaxBytes)
		if zerr != nil {
			return nil, zerr
		}
		f, ferr := FormatFromName(name)
		if ferr != nil {
			return nil, ferr
		}
		if f == FormatZIP {
			return nil, eris.Errorf("fetcher: nested archive %q", name)
		}
		return l.Parse(ctx, inner, f)
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", format)
	}
	return schema.NewTable(rows)
}

// ReadAll reads r up to the configured size limit.
func (l *Loader) ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, eris.Wrapf(ErrTooLarge, "dataset exceeds %d bytes", l.opts.MaxBytes)
	}
	return data, nil
}
