package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/campus/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=-name,id`: comma separated fields, "-" for descending order.
// Unknown fields are dropped by the repositories.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = core.CleanString(field, true /* lower */)
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
