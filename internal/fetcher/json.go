package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Expects input in the form [{...},{...}].
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)
		decoder.UseNumber()

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// ReadJSONRecords reads an array of flat objects into rows. The header is the
// sorted union of every object's keys; absent and null values become "".
func ReadJSONRecords(ctx context.Context, r io.Reader) ([][]string, error) {
	outCh, errCh := DecodeJSONArray[map[string]any](ctx, r)

	var objs []map[string]any
	keys := make(map[string]struct{})
	for obj := range outCh {
		for k := range obj {
			keys[k] = struct{}{}
		}
		objs = append(objs, obj)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	slices.Sort(header)

	rows := make([][]string, 0, len(objs)+1)
	rows = append(rows, header)
	for i, obj := range objs {
		row := make([]string, len(header))
		for j, k := range header {
			s, err := jsonScalar(obj[k])
			if err != nil {
				return nil, eris.Wrapf(err, "json: record %d field %q", i, k)
			}
			row[j] = s
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonScalar(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", eris.Errorf("unsupported value of type %T", v)
}
