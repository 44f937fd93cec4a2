package geocode

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// decodeResponse extracts the first result of a geocoding response,
// skipping every field it does not need.
func decodeResponse(data []byte) (*order.Location, error) {
	var (
		status string
		first  *order.Location
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "results":
			return d.Arr(func(d *jx.Decoder) error {
				if first != nil {
					return d.Skip()
				}
				loc, err := decodeResult(d)
				first = loc
				return err
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	switch status {
	case statusOK:
	case statusZeroResults:
		return nil, ErrNoResult
	default:
		return nil, &APIStatusError{Status: status}
	}
	if first == nil {
		return nil, ErrNoResult
	}
	return first, nil
}

func decodeResult(d *jx.Decoder) (*order.Location, error) {
	var (
		loc         order.Location
		hasLocation bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "formatted_address":
			v, err := d.Str()
			loc.FormattedAddress = v
			return err
		case "geometry":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "location" {
					return d.Skip()
				}
				hasLocation = true
				return d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "lat":
						loc.Latitude, err = d.Float64()
					case "lng":
						loc.Longitude, err = d.Float64()
					default:
						err = d.Skip()
					}
					return err
				})
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if !hasLocation {
		return nil, errors.New("result has no geometry.location")
	}
	return &loc, nil
}
