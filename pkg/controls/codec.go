package controls

import "fmt"

// Decode interprets a control-transfer payload per the control's kind.
func Decode(spec Spec, payload []byte) (Value, error) {
	if len(payload) < spec.Size {
		return Value{}, fmt.Errorf("controls: %s payload is %d bytes, want %d", spec.ID, len(payload), spec.Size)
	}

	switch spec.Kind {
	case KindBool:
		nonzero := false
		for _, b := range payload[:spec.Size] {
			if b != 0 {
				nonzero = true
				break
			}
		}
		return Bool(nonzero), nil
	case KindPair:
		first := unpackInt(payload[0:spec.PartSize], spec.Signed)
		second := unpackInt(payload[spec.PartSize:2*spec.PartSize], spec.Signed)
		return Pair(first, second), nil
	case KindEnum:
		return Enum(unpackInt(payload[:spec.Size], spec.Signed)), nil
	default:
		return Int(unpackInt(payload[:spec.Size], spec.Signed)), nil
	}
}

// Encode builds the wire payload for a value, zero-padded to the
// control's declared width.
func Encode(spec Spec, v Value) ([]byte, error) {
	if v.Kind != spec.Kind {
		return nil, fmt.Errorf("controls: %s expects a %s value, got %s", spec.ID, spec.Kind, v.Kind)
	}

	buf := make([]byte, spec.Size)
	switch spec.Kind {
	case KindBool:
		// write 0/1 across the full declared width so no high bytes
		// are left undefined
		if v.Bool {
			buf[0] = 1
		}
		return buf, nil
	case KindPair:
		if err := packInt(buf[0:spec.PartSize], v.Pair[0], spec.Signed); err != nil {
			return nil, fmt.Errorf("controls: %s first component: %w", spec.ID, err)
		}
		if err := packInt(buf[spec.PartSize:2*spec.PartSize], v.Pair[1], spec.Signed); err != nil {
			return nil, fmt.Errorf("controls: %s second component: %w", spec.ID, err)
		}
		return buf, nil
	default:
		if err := packInt(buf, v.Int, spec.Signed); err != nil {
			return nil, fmt.Errorf("controls: %s: %w", spec.ID, err)
		}
		return buf, nil
	}
}

// unpackInt reads a little-endian integer of len(b) bytes, sign
// extending when the control is signed.
func unpackInt(b []byte, signed bool) int32 {
	var u uint64
	for i, by := range b {
		u |= uint64(by) << (8 * i)
	}
	if signed {
		shift := 64 - 8*len(b)
		return int32(int64(u<<shift) >> shift)
	}
	return int32(u)
}

func packInt(b []byte, v int32, signed bool) error {
	bits := 8 * len(b)
	if signed {
		if bits < 32 {
			lo := int32(-1) << (bits - 1)
			hi := -lo - 1
			if v < lo || v > hi {
				return fmt.Errorf("value %d does not fit in %d signed bytes", v, len(b))
			}
		}
	} else {
		if v < 0 {
			return fmt.Errorf("value %d is negative for an unsigned control", v)
		}
		if bits < 32 && v >= int32(1)<<bits {
			return fmt.Errorf("value %d does not fit in %d bytes", v, len(b))
		}
	}
	u := uint32(v)
	for i := range b {
		b[i] = byte(u >> (8 * i))
	}
	return nil
}
