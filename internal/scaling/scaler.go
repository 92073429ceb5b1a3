// Package scaling converts raw digitizer codes into physical time/voltage
// samples.
package scaling

import (
	"encoding/binary"
	"fmt"

	"github.com/ghalamif/PulseFlow/internal/domain"
)

// Convert maps raw codes to a Waveform using the instrument's scaling
// coefficients:
//
//	time[i]    = (i - L*HPos/100) * SampleInterval + HorizontalDelay
//	voltage[i] = (raw[i] - VerticalOffset) * VerticalScale + VerticalZero
func Convert(raw []int32, c domain.ScalingCoefficients) domain.Waveform {
	n := len(raw)
	w := domain.Waveform{
		Time:    make([]float64, n),
		Voltage: make([]float64, n),
	}
	shift := float64(n) * c.HorizontalPositionPercent / 100
	for i, code := range raw {
		w.Time[i] = (float64(i)-shift)*c.SampleInterval + c.HorizontalDelay
		w.Voltage[i] = (float64(code)-c.VerticalOffset)*c.VerticalScale + c.VerticalZero
	}
	return w
}

// ConvertCapture validates the capture's coefficients before converting it.
func ConvertCapture(c *domain.Capture) (domain.Waveform, error) {
	if err := c.Scaling.Validate(); err != nil {
		return domain.Waveform{}, err
	}
	return Convert(c.Raw, c.Scaling), nil
}

// DecodeSamples unpacks a binary curve payload. width is the sample size in
// bytes (1 or 2); signed selects RIB-style two's complement over RPB-style
// unsigned codes.
func DecodeSamples(buf []byte, width int, signed bool, order binary.ByteOrder) ([]int32, error) {
	if order == nil {
		order = binary.BigEndian
	}
	switch width {
	case 1:
		out := make([]int32, len(buf))
		for i, b := range buf {
			if signed {
				out[i] = int32(int8(b))
			} else {
				out[i] = int32(b)
			}
		}
		return out, nil
	case 2:
		if len(buf)%2 != 0 {
			return nil, fmt.Errorf("decode samples: odd payload length %d for width 2", len(buf))
		}
		out := make([]int32, len(buf)/2)
		for i := range out {
			u := order.Uint16(buf[2*i:])
			if signed {
				out[i] = int32(int16(u))
			} else {
				out[i] = int32(u)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode samples: unsupported width %d", width)
	}
}
