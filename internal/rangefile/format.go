package rangefile

// On-disk format, little-endian, per spec.md §6:
//
//	magic(4B) | version(u16) | s2_level(u8) | mode(u8) | range_count(u32)
//	range_count * (start_cell_id:u64, end_cell_id:u64)
const (
	magic         = "SGR1"
	headerSize    = 4 + 2 + 1 + 1 + 4
	rangeSize     = 8 + 8
	currentVersion = uint16(1)

	modeDenyList  = uint8(0)
	modeAllowList = uint8(1)
)
