// Package export streams persisted orders as gzip-compressed JSON lines.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

// DefaultPageSize is the number of orders fetched per query.
const DefaultPageSize = 500

// FileMode is the permission of files written by WriteFile.
const FileMode os.FileMode = 0o644

// Lister pages through orders by ascending ID.
type Lister interface {
	List(ctx context.Context, afterID int64, limit int) ([]order.Order, error)
}

// Write reads every order from src and writes one JSON object per line to
// dst, gzip-compressed. Fetching and encoding run concurrently. It returns the
// number of exported orders.
func Write(ctx context.Context, src Lister, dst io.Writer, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	pages := make(chan []order.Order, 2)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pages)
		var afterID int64
		for {
			page, err := src.List(ctx, afterID, pageSize)
			if err != nil {
				return errors.Wrapf(err, "list orders after %d", afterID)
			}
			if len(page) == 0 {
				return nil
			}
			select {
			case pages <- page:
			case <-ctx.Done():
				return ctx.Err()
			}
			if len(page) < pageSize {
				return nil
			}
			afterID = page[len(page)-1].ID
		}
	})

	var count int
	g.Go(func() error {
		zw := pgzip.NewWriter(dst)
		var e jx.Encoder
		for page := range pages {
			for i := range page {
				e.Reset()
				encodeOrder(&e, &page[i])
				if _, err := zw.Write(append(e.Bytes(), '\n')); err != nil {
					return errors.Wrap(err, "write order")
				}
				count++
			}
		}
		return errors.Wrap(zw.Close(), "close gzip writer")
	})

	if err := g.Wait(); err != nil {
		return count, err
	}
	return count, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderId")
	e.Str(o.Reference)
	e.FieldStart("customerName")
	e.Str(o.CustomerName)
	e.FieldStart("streetAddress")
	e.Str(o.Address.Street)
	e.FieldStart("city")
	e.Str(o.Address.City)
	e.FieldStart("state")
	e.Str(o.Address.State)
	e.FieldStart("postalCode")
	e.Str(o.Address.PostalCode)
	e.FieldStart("country")
	e.Str(o.Address.Country)

	e.FieldStart("location")
	if loc := o.Location; loc != nil {
		e.ObjStart()
		e.FieldStart("latitude")
		e.Float64(loc.Latitude)
		e.FieldStart("longitude")
		e.Float64(loc.Longitude)
		e.FieldStart("formattedAddress")
		e.Str(loc.FormattedAddress)
		e.ObjEnd()
	} else {
		e.Null()
	}

	// Money is exported as exact decimal strings.
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("status")
	e.Str(o.Status)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productName")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		e.Str(it.UnitPrice.StringFixed(2))
		e.FieldStart("lineTotal")
		e.Str(it.LineTotal.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// WriteFile exports every order from src to path. The file is written to a
// temporary file in the same directory and renamed over path only after a
// complete export, so path is never left truncated. Failures remove the
// temporary file.
func WriteFile(ctx context.Context, src Lister, path string, pageSize int) (_ int, rerr error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, errors.Wrap(err, "create output")
	}
	defer func() {
		if rerr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := Write(ctx, src, tmp, pageSize)
	if err != nil {
		return 0, err
	}
	// CreateTemp opens with 0600.
	if err := tmp.Chmod(FileMode); err != nil {
		return 0, errors.Wrap(err, "chmod output")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, "close output")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.Wrap(err, "rename output")
	}
	return n, nil
}
