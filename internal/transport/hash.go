package transport

// crc16CCITT is the SURP-style name-to-port hash from the teacher's
// pkg/crc.go, reused here to derive a group's admin-bus multicast port
// from its group name so independently-started devices agree on a port
// without any out-of-band configuration.
func crc16CCITT(name string) uint16 {
	var crc uint16 = 0xFFFF
	for _, c := range name {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// multicastPort maps a group name into the 1024-49151 dynamic port range,
// exactly as the teacher's stringToMulticastAddr does.
func multicastPort(groupName string) int {
	return 1024 + int(crc16CCITT(groupName)&0xBBFF)
}
