package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/wuyize25/oidn/internal/device"
)

var convSelections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "oidn_conv_kernel_selections_total",
	Help: "Convolution kernel catalog selections by entry name",
}, []string{"kernel"})

// Select picks the best catalog entry for a convolution problem on a
// device of the given capability. Eligible entries match the problem's
// datatype and have MinCapability <= capability. Among eligible entries
// the winner is chosen by, in strict priority order:
//
//  1. highest MinCapability (a newer-architecture kernel is never passed
//     over for a nominally cheaper older one),
//  2. lowest padded-tile cost roundUp(M,bm)*roundUp(N,bn)*roundUp(K,bk),
//  3. largest block volume bm*bn*bk.
//
// Returns UnsupportedHardware if no entry is eligible.
func Select(catalog []Entry, p ConvProblem, capability int) (*Entry, error) {
	var best *Entry
	var bestCost int64

	for i := range catalog {
		e := &catalog[i]
		if e.DataType != p.DataType || e.MinCapability > capability {
			continue
		}
		if best == nil {
			best, bestCost = e, paddedCost(e, p)
			continue
		}
		if e.MinCapability != best.MinCapability {
			if e.MinCapability > best.MinCapability {
				best, bestCost = e, paddedCost(e, p)
			}
			continue
		}
		c := paddedCost(e, p)
		switch {
		case c < bestCost:
			best, bestCost = e, c
		case c == bestCost && e.BlockVolume() > best.BlockVolume():
			best = e
		}
	}

	if best == nil {
		return nil, device.Errorf(device.CodeUnsupportedHardware,
			"no convolution kernel for datatype %s at capability %d", p.DataType, capability)
	}
	return best, nil
}

// SelectConv resolves a convolution against the default catalog and
// instantiates the chosen kernel. Selection happens once, at op
// construction; the kernel is fixed for the op's lifetime.
func SelectConv(dev device.Device, p ConvParams) (Conv, string, error) {
	entry, err := Select(DefaultCatalog(), p.Problem(), dev.Capability())
	if err != nil {
		return nil, "", err
	}
	impl, err := entry.Factory(dev, p)
	if err != nil {
		return nil, "", err
	}
	convSelections.WithLabelValues(entry.Name).Inc()
	log.Debug().
		Str("kernel", entry.Name).
		Int("capability", dev.Capability()).
		Msg("selected convolution kernel")
	return impl, entry.Name, nil
}

// paddedCost is the problem volume rounded up to the entry's tile
// granularity, capturing the work wasted on partial tiles.
func paddedCost(e *Entry, p ConvProblem) int64 {
	return roundUp(p.M, e.BlockM) * roundUp(p.N, e.BlockN) * roundUp(p.K, e.BlockK)
}

func roundUp(x, to int) int64 {
	return int64((x + to - 1) / to * to)
}
