package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/grocery-etl/internal/model"
)

// ParseFilter reads a deal filter from query parameters: store_id,
// category_id, min_discount, min_price, max_price, active_from, active_to
// (YYYY-MM-DD), q, limit and offset.
func ParseFilter(q url.Values) (model.DealFilter, error) {
	var f model.DealFilter
	var err error

	if f.StoreID, err = idParam(q, "store_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = idParam(q, "category_id"); err != nil {
		return f, err
	}
	if f.MinDiscount, err = decimalParam(q, "min_discount"); err != nil {
		return f, err
	}
	if f.MinSalePrice, err = decimalParam(q, "min_price"); err != nil {
		return f, err
	}
	if f.MaxSalePrice, err = decimalParam(q, "max_price"); err != nil {
		return f, err
	}
	if f.ActiveFrom, err = dateParam(q, "active_from"); err != nil {
		return f, err
	}
	if f.ActiveTo, err = dateParam(q, "active_to"); err != nil {
		return f, err
	}
	if f.ActiveFrom != nil && f.ActiveTo != nil && f.ActiveTo.Before(*f.ActiveFrom) {
		return f, eris.New("active_to is before active_from")
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, eris.Wrap(err, "limit")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, eris.Wrap(err, "offset")
	}
	f.Search = strings.TrimSpace(q.Get("q"))
	return f, nil
}

func idParam(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, eris.Errorf("%s must be a positive integer", key)
	}
	return &id, nil
}

func decimalParam(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, eris.Errorf("%s must be a non-negative number", key)
	}
	return &d, nil
}

func dateParam(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := model.ParseDate(raw)
	if err != nil {
		return nil, eris.Errorf("%s must be a date (YYYY-MM-DD)", key)
	}
	return &t, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.New("must be a non-negative integer")
	}
	return n, nil
}
