package rdesc

const (
	usagePageGenericDeviceControls = 0x06
	usageBatteryStrength           = 0x20
)

func itemValue(size byte, buf []byte) uint32 {
	if len(buf) < int(size) {
		return 0
	}
	switch size {
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(buf[1])<<8 | uint32(buf[0])
	case 4:
		return uint32(buf[3])<<24 | uint32(buf[2])<<16 | uint32(buf[1])<<8 | uint32(buf[0])
	}
	return 0
}

// FindReportID walks the short items of desc and returns the report id of
// the first main item declared under the given usage page and usage.
func FindReportID(desc []byte, page, usage uint32) (uint8, bool) {
	var (
		reportID  uint32
		usagePage uint32
		usages    []uint32
	)

	for i := 0; i < len(desc); {
		prefix := desc[i]
		i++

		// long items carry their size in the next byte
		if prefix == 0xFE {
			if i >= len(desc) {
				break
			}
			i += 2 + int(desc[i])
			continue
		}

		var (
			tag  = (prefix & 0b11110000) >> 4
			typ  = (prefix & 0b1100) >> 2
			size = prefix & 0b11
		)
		if size == 3 {
			size = 4
		}
		if i+int(size) > len(desc) {
			break
		}
		val := itemValue(size, desc[i:])

		switch typ {
		case 0: // main
			switch tag {
			case 8, 9, 11: // input, output, feature
				for _, u := range usages {
					full := u
					if u <= 0xFFFF {
						full = usagePage<<16 | u
					}
					if full == page<<16|usage {
						return uint8(reportID), true
					}
				}
			}
			usages = usages[:0]

		case 1: // global
			switch tag {
			case 0:
				usagePage = val
			case 8:
				reportID = val
			}

		case 2: // local
			if tag == 0 {
				if size == 4 {
					usages = append(usages, val)
				} else {
					usages = append(usages, val&0xFFFF)
				}
			}
		}

		i += int(size)
	}
	return 0, false
}

// BatteryReportID returns the id of the report carrying the battery
// strength byte.
func BatteryReportID(desc []byte) (uint8, bool) {
	return FindReportID(desc, usagePageGenericDeviceControls, usageBatteryStrength)
}
