package repository

import (
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// buildItemQuery turns a filter into a SELECT over bookable_items. Each set
// field appends one predicate; the viewer predicate is always present unless
// the viewer is an admin.
func buildItemQuery(f model.ItemFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case f.Viewer.IsAdmin():
	case f.Viewer.IsAnonymous():
		where = append(where, "is_private = FALSE")
	default:
		where = append(where, "(is_private = FALSE OR provider_id = "+arg(f.Viewer.UserID)+")")
	}

	for _, term := range strings.Fields(f.Keywords) {
		p := arg("%" + escapeLike(term) + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(f.Type))
	}
	if f.Location != "" {
		where = append(where, "location ILIKE "+arg("%"+escapeLike(f.Location)+"%"))
	}
	if f.MinPrice != nil {
		where = append(where, "base_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "base_price <= "+arg(*f.MaxPrice))
	}
	if f.StartsAfter != nil {
		where = append(where, "start_time >= "+arg(*f.StartsAfter))
	}
	if f.EndsBefore != nil {
		where = append(where, "COALESCE(end_time, start_time) <= "+arg(*f.EndsBefore))
	}

	var b strings.Builder
	b.WriteString("SELECT " + itemColumns + " FROM bookable_items")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY start_time ASC, id ASC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
