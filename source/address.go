package source

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address is the position of the tile in XYZ tiling scheme.
type Address struct {
	Z uint32
	X uint32
	Y uint32
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Z, a.X, a.Y)
}

// ParseAddress parses the address from path of the locator formatted as /{z}/{x}/{y}[.ext].
func ParseAddress(locator string) (Address, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return Address{}, errors.Wrapf(err, "invalid locator %q", locator)
	}

	p := strings.TrimPrefix(u.Path, "/")
	p = strings.TrimSuffix(p, path.Ext(p))
	parts := strings.Split(p, "/")
	if len(parts) != 3 {
		return Address{}, errors.Errorf("locator %q does not contain z/x/y address", locator)
	}

	var values [3]uint32
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Address{}, errors.Wrapf(err, "invalid address component %q in locator %q", part, locator)
		}
		values[i] = uint32(v)
	}

	a := Address{Z: values[0], X: values[1], Y: values[2]}
	if a.Z > 31 || uint64(a.X) >= 1<<a.Z || uint64(a.Y) >= 1<<a.Z {
		return Address{}, errors.Errorf("address %s is out of range", a)
	}
	return a, nil
}
