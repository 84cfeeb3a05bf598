package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeportal/core"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
)

// Ordering binds `?ordering=field,-other` (a leading "-" means descending).
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindLimit reads `?limit=n`; it returns -1 (no limit) when absent.
func bindLimit(ctx echo.Context) (int, error) {
	val := ctx.QueryParam(limitParam)
	if val == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, core.NewValidationError(err, core.FieldError{Field: limitParam, Error: "limit must be a positive number"})
	}
	return n, nil
}
