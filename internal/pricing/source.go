package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSourceUnavailable is returned by a Source that cannot produce a quote at
// all: not opted in, missing entitlement, or the source has no data for the
// requested resource. It triggers the mock fallback in the quantifier.
var ErrSourceUnavailable = errors.New("pricing source unavailable")

// Source produces a monthly USD estimate for one resource.
type Source interface {
	// Quote returns the estimated monthly cost for a resource of the given
	// type, region and size. Returns ErrSourceUnavailable (possibly wrapped)
	// when the source cannot serve the request.
	Quote(ctx context.Context, resourceType, region, size string) (float64, error)
}

// StaticSource quotes from a built-in on-demand price table. Prices are
// monthly USD at 730 hours; a per-region factor approximates regional uplift.
type StaticSource struct{}

func NewStaticSource() *StaticSource { return &StaticSource{} }

var ec2MonthlyPrices = map[string]float64{
	"t3.micro":  7.59,
	"t3.small":  15.18,
	"t3.medium": 30.37,
	"t3.large":  60.74,
	"m5.large":  70.08,
	"m5.xlarge": 140.16,
	"r5.large":  91.98,
	"c5.large":  62.05,
}

var rdsMonthlyPrices = map[string]float64{
	"db.t3.micro":  12.41,
	"db.t3.small":  24.82,
	"db.t3.medium": 49.64,
	"db.m5.large":  124.83,
	"db.r5.large":  175.93,
}

var regionFactors = map[string]float64{
	"us-east-1":      1.00,
	"us-east-2":      1.00,
	"us-west-2":      1.00,
	"eu-west-1":      1.02,
	"eu-central-1":   1.04,
	"ap-southeast-1": 1.08,
	"ap-northeast-1": 1.10,
}

const defaultRegionFactor = 1.05

func (s *StaticSource) Quote(_ context.Context, resourceType, region, size string) (float64, error) {
	factor, ok := regionFactors[region]
	if !ok {
		factor = defaultRegionFactor
	}

	switch resourceType {
	case "ec2_instance":
		price, ok := ec2MonthlyPrices[size]
		if !ok {
			return 0, fmt.Errorf("no price for instance type %q: %w", size, ErrSourceUnavailable)
		}
		return round2(price * factor), nil
	case "rds_instance":
		price, ok := rdsMonthlyPrices[size]
		if !ok {
			return 0, fmt.Errorf("no price for DB class %q: %w", size, ErrSourceUnavailable)
		}
		return round2(price * factor), nil
	case "ebs_volume":
		gb, err := strconv.Atoi(strings.TrimSpace(size))
		if err != nil || gb < 0 {
			return 0, fmt.Errorf("bad volume size %q: %w", size, ErrSourceUnavailable)
		}
		return round2(0.08 * float64(gb) * factor), nil
	case "elastic_ip":
		return round2(3.65 * factor), nil
	case "s3_bucket":
		return round2(2.30 * factor), nil
	case "load_balancer":
		return round2(16.43 * factor), nil
	case "nat_gateway":
		return round2(32.85 * factor), nil
	}
	return 0, fmt.Errorf("unknown resource type %q: %w", resourceType, ErrSourceUnavailable)
}
