package quote

import (
	"github.com/sells-group/freight-quotes/internal/model"
)

// Defaults fill in job fields the input leaves blank.
type Defaults struct {
	Commodity      string  `yaml:"commodity" mapstructure:"commodity"`
	ContainerType  string  `yaml:"container_type" mapstructure:"container_type"`
	WeightKg       float64 `yaml:"weight_kg" mapstructure:"weight_kg"`
	PriceOwner     string  `yaml:"price_owner" mapstructure:"price_owner"`
	DateOffsetDays int     `yaml:"date_offset_days" mapstructure:"date_offset_days"`
}

// Resolve merges a job's overrides over d.
func (d Defaults) Resolve(job model.RouteJob) (Request, int) {
	req := Request{
		Origin:        job.Origin,
		Destination:   job.Destination,
		Commodity:     d.Commodity,
		ContainerType: d.ContainerType,
		WeightKg:      d.WeightKg,
		PriceOwner:    d.PriceOwner,
	}
	if job.Commodity != "" {
		req.Commodity = job.Commodity
	}
	if job.ContainerType != "" {
		req.ContainerType = job.ContainerType
	}
	if job.WeightKg > 0 {
		req.WeightKg = job.WeightKg
	}
	if job.PriceOwner != "" {
		req.PriceOwner = job.PriceOwner
	}
	offset := d.DateOffsetDays
	if job.DateOffsetDays != nil {
		offset = *job.DateOffsetDays
	}
	return req, offset
}
