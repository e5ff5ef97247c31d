package forecast

import (
	"fmt"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/gridcast/grid"
)

// ForecastTensor holds a finished rollout, indexed
// [lead][init][channel][cell] in one flat buffer.
type ForecastTensor struct {
	Leads    int
	Inits    int
	Channels int
	Cells    int

	Data []float32
}

// NewForecastTensor allocates a zeroed tensor.
func NewForecastTensor(leads, inits, channels, cells int) *ForecastTensor {
	return &ForecastTensor{
		Leads:    leads,
		Inits:    inits,
		Channels: channels,
		Cells:    cells,
		Data:     make([]float32, leads*inits*channels*cells),
	}
}

// Dims returns [Leads, Inits, Channels, Cells].
func (f *ForecastTensor) Dims() []int {
	return []int{f.Leads, f.Inits, f.Channels, f.Cells}
}

func (f *ForecastTensor) offset(lead, init, channel int) int {
	return ((lead*f.Inits+init)*f.Channels + channel) * f.Cells
}

// Field returns the cells of one (lead, init, channel) slice. The slice
// aliases Data.
func (f *ForecastTensor) Field(lead, init, channel int) []float32 {
	off := f.offset(lead, init, channel)
	return f.Data[off : off+f.Cells : off+f.Cells]
}

// fillInit sets every value of one initialization to v.
func (f *ForecastTensor) fillInit(init int, v float32) {
	for lead := range f.Leads {
		for c := range f.Channels {
			field := f.Field(lead, init, c)
			for i := range field {
				field[i] = v
			}
		}
	}
}

// At returns a single value.
func (f *ForecastTensor) At(lead, init, channel, cell int) float32 {
	return f.Data[f.offset(lead, init, channel)+cell]
}

// Validate checks that Data matches the declared shape.
func (f *ForecastTensor) Validate() error {
	return grid.CheckDim("forecast data", f.Leads*f.Inits*f.Channels*f.Cells, len(f.Data))
}

// Clone returns a deep copy.
func (f *ForecastTensor) Clone() *ForecastTensor {
	c := *f
	c.Data = append([]float32(nil), f.Data...)
	return &c
}

// ToTensor converts the forecast to a gomlx tensor shaped Dims().
func (f *ForecastTensor) ToTensor() (*tensors.Tensor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(f.Data, f.Dims()...), nil
}

// LeadTimes returns dt, 2·dt, ..., k·dt.
func LeadTimes(dt time.Duration, k int) []time.Duration {
	leads := make([]time.Duration, k)
	for i := range leads {
		leads[i] = time.Duration(i+1) * dt
	}
	return leads
}

// CheckLeadTimes verifies leads is strictly increasing by a fixed step.
func CheckLeadTimes(leads []time.Duration) error {
	if len(leads) == 0 {
		return fmt.Errorf("no lead times")
	}
	if leads[0] <= 0 {
		return fmt.Errorf("first lead time must be positive, got %v", leads[0])
	}
	for i := 1; i < len(leads); i++ {
		if leads[i]-leads[i-1] != leads[0] {
			return fmt.Errorf("lead times not a fixed step at index %d: %v after %v", i, leads[i], leads[i-1])
		}
	}
	return nil
}
