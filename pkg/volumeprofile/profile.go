// Package volumeprofile distributes traded volume across price bins and
// classifies the resulting levels into high and low volume nodes.
package volumeprofile

import (
	"github.com/pkg/errors"

	"github.com/tradelens/tradelens/internal/domain"
)

// flatRangeEpsilon widens a zero-width price range so bin math stays defined
// when every bar trades at a single price.
const flatRangeEpsilon = 0.01

const (
	// DefaultNumBins is the default number of price bins.
	DefaultNumBins = 50
	// DefaultHVNPercentile is the default high volume node cutoff percentile.
	DefaultHVNPercentile = 95
	// DefaultLVNPercentile is the default low volume node cutoff percentile.
	DefaultLVNPercentile = 5
)

// NodeType classifies a price bin by its accumulated volume.
type NodeType string

const (
	// NodeTypeHVN high volume node, accumulated volume at or above the high percentile cutoff.
	NodeTypeHVN NodeType = "HVN"
	// NodeTypeLVN low volume node, accumulated volume at or below the low percentile cutoff.
	NodeTypeLVN NodeType = "LVN"
	// NodeTypePOC point of control, the single bin with the greatest accumulated volume.
	NodeTypePOC NodeType = "POC"
	// NodeTypeNormal bin between the low and high cutoffs.
	NodeTypeNormal NodeType = "NORMAL"
)

// Bar price extremes and traded volume of a single candle. Bars may be
// supplied in any order; the profile does not depend on their sequence.
type Bar struct {
	High   float64
	Low    float64
	Volume float64
}

// Options configures the profile calculation. Callers must validate options
// before calling Calculate; the engine itself does not reject bad values.
type Options struct {
	// NumBins number of equal-width price bins, must be >= 1.
	NumBins int
	// HVNPercentile percentile cutoff for high volume nodes, in [0, 100].
	HVNPercentile float64
	// LVNPercentile percentile cutoff for low volume nodes, in [0, 100].
	LVNPercentile float64
}

// DefaultOptions returns the standard configuration (50 bins, 95/5 cutoffs).
func DefaultOptions() Options {
	return Options{
		NumBins:       DefaultNumBins,
		HVNPercentile: DefaultHVNPercentile,
		LVNPercentile: DefaultLVNPercentile,
	}
}

// Validate checks the options, returning a descriptive error for values the
// engine is not defined for.
func (o Options) Validate() error {
	if o.NumBins < 1 {
		return errors.Errorf("invalid profile options: num_bins must be a positive integer, got %d", o.NumBins)
	}
	if o.HVNPercentile < 0 || o.HVNPercentile > 100 {
		return errors.Errorf("invalid profile options: hvn_percentile must be in [0, 100], got %v", o.HVNPercentile)
	}
	if o.LVNPercentile < 0 || o.LVNPercentile > 100 {
		return errors.Errorf("invalid profile options: lvn_percentile must be in [0, 100], got %v", o.LVNPercentile)
	}
	return nil
}

// Node a single populated price bin.
type Node struct {
	// PriceLevel midpoint of the bin's price range.
	PriceLevel float64 `json:"price_level"`
	// Volume accumulated price-weighted volume (volume x bin midpoint, a
	// dollar-volume proxy).
	Volume float64 `json:"volume"`
	// Type classification of the bin.
	Type NodeType `json:"node_type"`
	// BinIndex index of the bin within the profile, ascending with price.
	BinIndex int `json:"bin_index"`
	// PriceRange low and high edge of the bin.
	PriceRange [2]float64 `json:"price_range"`
}

// Profile the full result of a volume profile calculation.
type Profile struct {
	// Nodes all populated bins in ascending bin order. Empty bins are omitted.
	Nodes []Node `json:"nodes"`
	// HVNNodes high volume nodes, always including the point of control.
	HVNNodes []Node `json:"hvn_nodes"`
	// LVNNodes low volume nodes.
	LVNNodes []Node `json:"lvn_nodes"`
	// POCNode the point of control, nil when no volume was accumulated.
	POCNode *Node `json:"poc_node"`
	// HVNThreshold percentile cutoff over non-zero bin volumes for HVN classification.
	HVNThreshold float64 `json:"hvn_threshold"`
	// LVNThreshold percentile cutoff over non-zero bin volumes for LVN classification.
	LVNThreshold float64 `json:"lvn_threshold"`
	// TotalVolume sum of accumulated volume across all bins.
	TotalVolume float64 `json:"total_volume"`
	// PriceRange minimum low and maximum high across all bars.
	PriceRange [2]float64 `json:"price_range"`
	// BinSize uniform width of each price bin.
	BinSize float64 `json:"bin_size"`
	// POCPrice price level of the point of control, nil when no volume.
	POCPrice *float64 `json:"poc_price"`
}

func emptyProfile() Profile {
	return Profile{
		Nodes:    []Node{},
		HVNNodes: []Node{},
		LVNNodes: []Node{},
	}
}

// Calculate builds a volume profile from the given bars.
//
// The observed price range is split into opts.NumBins equal-width bins. Each
// bar's volume is spread evenly over the bins its low..high range spans and
// accumulated weighted by the bin midpoint price. Bins are then classified
// against linear-interpolation percentiles of the non-zero accumulators.
//
// Bars with non-positive volume are skipped. Empty input yields the canonical
// zero profile. The function is pure and deterministic; it never returns an
// error and is safe for concurrent use.
func Calculate(bars []Bar, opts Options) Profile {
	result := emptyProfile()
	if len(bars) == 0 {
		return result
	}

	priceMin := bars[0].Low
	priceMax := bars[0].High
	for _, b := range bars[1:] {
		if b.Low < priceMin {
			priceMin = b.Low
		}
		if b.High > priceMax {
			priceMax = b.High
		}
	}
	if priceMin == priceMax {
		priceMax += flatRangeEpsilon
	}

	edges := linspace(priceMin, priceMax, opts.NumBins+1)
	binSize := (priceMax - priceMin) / float64(opts.NumBins)

	binVolume := make([]float64, opts.NumBins)
	for _, b := range bars {
		if b.Volume <= 0 {
			continue
		}
		lowBin := searchSortedLeft(edges, b.Low)
		highBin := searchSortedRight(edges, b.High)
		if lowBin >= highBin {
			// degenerate span, the bar falls between edges and is dropped
			continue
		}
		volumePerBin := b.Volume / float64(highBin-lowBin)
		for i := lowBin; i < highBin && i < opts.NumBins; i++ {
			mid := (edges[i] + edges[i+1]) / 2
			binVolume[i] += volumePerBin * mid
		}
	}

	result.PriceRange = [2]float64{priceMin, priceMax}
	result.BinSize = binSize

	var nonZero []float64
	for _, v := range binVolume {
		result.TotalVolume += v
		if v > 0 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) == 0 {
		return result
	}

	result.HVNThreshold = percentile(nonZero, opts.HVNPercentile)
	result.LVNThreshold = percentile(nonZero, opts.LVNPercentile)

	// first strictly greatest accumulator wins, so ties resolve to the
	// lowest bin index
	pocBin := 0
	for i, v := range binVolume {
		if v > binVolume[pocBin] {
			pocBin = i
		}
	}

	for i, v := range binVolume {
		if v == 0 {
			continue
		}
		node := Node{
			PriceLevel: (edges[i] + edges[i+1]) / 2,
			Volume:     v,
			BinIndex:   i,
			PriceRange: [2]float64{edges[i], edges[i+1]},
		}
		switch {
		case i == pocBin:
			node.Type = NodeTypePOC
			poc := node
			result.POCNode = &poc
			result.POCPrice = &poc.PriceLevel
			// the point of control always counts as a high volume node,
			// even when its accumulator is below the HVN cutoff
			result.HVNNodes = append(result.HVNNodes, node)
		case v >= result.HVNThreshold:
			node.Type = NodeTypeHVN
			result.HVNNodes = append(result.HVNNodes, node)
		case v <= result.LVNThreshold:
			node.Type = NodeTypeLVN
			result.LVNNodes = append(result.LVNNodes, node)
		default:
			node.Type = NodeTypeNormal
		}
		result.Nodes = append(result.Nodes, node)
	}

	return result
}

// BarsFromCandles converts domain candles to profile bars, dropping the
// decimal representation used at the domain boundary.
func BarsFromCandles(candles []domain.MarketCandle) []Bar {
	bars := make([]Bar, len(candles))
	for i, c := range candles {
		high, _ := c.High.Float64()
		low, _ := c.Low.Float64()
		volume, _ := c.Volume.Float64()
		bars[i] = Bar{High: high, Low: low, Volume: volume}
	}
	return bars
}
