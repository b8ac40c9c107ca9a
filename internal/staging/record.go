package staging

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/grocery-etl/internal/model"
)

// Number is a decimal that encodes as a bare JSON number.
type Number decimal.Decimal

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

// UnmarshalJSON accepts both numbers and numeric strings.
func (n *Number) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = Number(d)
	return nil
}

// Date is a calendar date encoded as YYYY-MM-DD.
type Date time.Time

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(model.DateLayout))
}

// UnmarshalJSON accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "date must be a string")
	}
	if len(s) > len(model.DateLayout) && strings.Contains(s, "T") {
		s = s[:len(model.DateLayout)]
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return eris.Wrapf(err, "invalid date %q", s)
	}
	*d = Date(t)
	return nil
}

// StoreRef is the store snapshot carried by a staged record.
type StoreRef struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
}

// CategoryRef is the category snapshot carried by a staged record.
type CategoryRef struct {
	Name             string `json:"name"`
	ParentCategoryID *int64 `json:"parent_category_id,omitempty"`
}

// Record is the on-disk form of a staged deal.
type Record struct {
	UUID               string       `json:"uuid"`
	StoreID            int64        `json:"store_id"`
	ProductName        string       `json:"product_name"`
	CategoryID         *int64       `json:"category_id,omitempty"`
	RegularPrice       *Number      `json:"regular_price,omitempty"`
	SalePrice          *Number      `json:"sale_price,omitempty"`
	Unit               string       `json:"unit,omitempty"`
	Quantity           *Number      `json:"quantity,omitempty"`
	DiscountPercentage *Number      `json:"discount_percentage,omitempty"`
	ValidFrom          *Date        `json:"valid_from"`
	ValidTo            *Date        `json:"valid_to"`
	SourceURL          string       `json:"source_url,omitempty"`
	ImageURL           string       `json:"image_url,omitempty"`
	Description        string       `json:"description,omitempty"`
	Store              *StoreRef    `json:"store,omitempty"`
	Category           *CategoryRef `json:"category,omitempty"`
}

func toNumber(d *decimal.Decimal) *Number {
	if d == nil {
		return nil
	}
	n := Number(*d)
	return &n
}

func fromNumber(n *Number) *decimal.Decimal {
	if n == nil {
		return nil
	}
	d := decimal.Decimal(*n)
	return &d
}

func toDate(t time.Time) *Date {
	if t.IsZero() {
		return nil
	}
	d := Date(model.Date(t))
	return &d
}

func fromDate(d *Date) time.Time {
	if d == nil {
		return time.Time{}
	}
	return time.Time(*d)
}

// FromDeal converts a deal to its staged form.
func FromDeal(d model.Deal) Record {
	r := Record{
		UUID:               d.UUID,
		StoreID:            d.StoreID,
		ProductName:        d.ProductName,
		CategoryID:         d.CategoryID,
		RegularPrice:       toNumber(d.RegularPrice),
		SalePrice:          toNumber(d.SalePrice),
		Unit:               d.Unit,
		Quantity:           toNumber(d.Quantity),
		DiscountPercentage: toNumber(d.DiscountPercentage),
		ValidFrom:          toDate(d.ValidFrom),
		ValidTo:            toDate(d.ValidTo),
		SourceURL:          d.SourceURL,
		ImageURL:           d.ImageURL,
		Description:        d.Description,
	}
	if d.Store != nil && d.Store.Name != "" {
		r.Store = &StoreRef{Name: d.Store.Name, Location: d.Store.Location, Website: d.Store.Website}
	}
	if d.Category != nil && d.Category.Name != "" {
		r.Category = &CategoryRef{Name: d.Category.Name, ParentCategoryID: d.Category.ParentCategoryID}
	}
	return r
}

// Deal converts a staged record back to a deal. It does not validate.
func (r Record) Deal() model.Deal {
	d := model.Deal{
		UUID:               r.UUID,
		StoreID:            r.StoreID,
		ProductName:        r.ProductName,
		CategoryID:         r.CategoryID,
		RegularPrice:       fromNumber(r.RegularPrice),
		SalePrice:          fromNumber(r.SalePrice),
		Unit:               r.Unit,
		Quantity:           fromNumber(r.Quantity),
		DiscountPercentage: fromNumber(r.DiscountPercentage),
		ValidFrom:          fromDate(r.ValidFrom),
		ValidTo:            fromDate(r.ValidTo),
		SourceURL:          r.SourceURL,
		ImageURL:           r.ImageURL,
		Description:        r.Description,
	}
	if r.Store != nil {
		d.Store = &model.Store{Name: r.Store.Name, Location: r.Store.Location, Website: r.Store.Website}
	}
	if r.Category != nil {
		d.Category = &model.Category{Name: r.Category.Name, ParentCategoryID: r.Category.ParentCategoryID}
	}
	return d
}

// Encode renders a record as indented JSON.
func Encode(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, eris.Wrap(err, "staging: encode record")
	}
	return buf.Bytes(), nil
}

// Decode parses a staged record.
func Decode(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, &DecodeError{Err: err}
	}
	return r, nil
}

// DecodeError reports a staged file that is not a well-formed record.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "staging: decode record: " + e.Err.Error()
	}
	return "staging: decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
