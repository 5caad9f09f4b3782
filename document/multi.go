package document

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Multi holds documents opened together by OpenAll.
type Multi struct {
	Data []Document
}

// OpenAll opens every path concurrently, one goroutine per path.
//
// Either all documents are returned, in the order of paths, or an error is
// returned and every document that did open has already been closed.
func OpenAll(ctx context.Context, open OpenFunc, paths ...string) (*Multi, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	docs := make([]Document, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			doc, err := open(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			docs[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		closeAll(docs)
		return nil, err
	}
	return &Multi{Data: docs}, nil
}

// Close releases all documents, returning the joined close errors.
func (m *Multi) Close() error {
	if m == nil {
		return nil
	}
	err := closeAll(m.Data)
	m.Data = nil
	return err
}

func closeAll(docs []Document) error {
	var errs []error
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if err := doc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
