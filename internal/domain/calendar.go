package domain

// monthLengths is the fixed non-leap calendar used to address hourly shade
// files. The provider publishes 365-day data; February 29 is never addressed.
var monthLengths = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DayOfYearToMonthDay converts a 1-based day-of-year into a (month 1..12,
// day-of-month 1..31) pair. Inputs below 1 clamp to January 1 and inputs past
// 365 clamp to December 31.
func DayOfYearToMonthDay(dayOfYear int) (month, day int) {
	if dayOfYear < 1 {
		return 1, 1
	}
	remaining := dayOfYear
	for m, length := range monthLengths {
		if remaining <= length {
			return m + 1, remaining
		}
		remaining -= length
	}
	return 12, 31
}

// DayBit extracts the sunlight flag for one calendar day (1..31) from an
// hourly shade word: bit (day-1) is 1 when the pixel is sunlit on that day.
func DayBit(word uint32, day int) int {
	return int((word >> (day - 1)) & 1)
}

// DecodeDayBits expands an hourly shade band into a binary grid for one
// calendar day of the band's month. The input values are 32-bit words stored
// as float64 by the decoder; the result holds 0 or 1 per pixel.
func DecodeDayBits(band []float64, day int) []float64 {
	out := make([]float64, len(band))
	for i, v := range band {
		out[i] = float64(DayBit(uint32(int64(v)), day))
	}
	return out
}
