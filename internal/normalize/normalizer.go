package normalize

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

// Input bundles what a source run knows about one extracted product.
type Input struct {
	Result     *extract.Result
	StoreID    int64
	Window     Window
	CategoryID *int64
	// DescriptionFallback is used when the result has no description.
	DescriptionFallback string
}

// Deal assembles a canonical deal from an extraction result and assigns its
// identity. Prices are quantized to cents before the discount is derived.
// The returned deal has passed Validate.
func Deal(in Input) (model.Deal, error) {
	if in.Result == nil {
		return model.Deal{}, eris.New("normalize: nil extraction result")
	}
	r := in.Result

	desc := r.Description
	if desc == "" {
		desc = in.DescriptionFallback
	}

	d := model.Deal{
		StoreID:      in.StoreID,
		ProductName:  CleanName(r.Name),
		CategoryID:   in.CategoryID,
		RegularPrice: r.RegularPrice,
		SalePrice:    r.SalePrice,
		Unit:         r.Unit,
		Quantity:     r.Quantity,
		ValidFrom:    model.Date(in.Window.From),
		ValidTo:      model.Date(in.Window.To),
		SourceURL:    r.SourceURL,
		ImageURL:     r.ImageURL,
		Description:  desc,
	}
	d.Quantize()
	d.DiscountPercentage = extract.Discount(d.RegularPrice, d.SalePrice)
	d.UUID = identity.DealID(d.ProductName, d.StoreID, d.ValidFrom, d.ValidTo)

	if err := d.Validate(); err != nil {
		return model.Deal{}, eris.Wrapf(err, "normalize: %q", d.ProductName)
	}
	return d, nil
}
