// Package domain models the solar raster data layers produced by the
// upstream building-insight provider.
//
// # Data Source
//
// For a given building footprint the provider exposes a bundle of GeoTIFF
// rasters, each covering the same ground extent at roughly 10 cm/pixel:
//
//	mask         1 band, uint8:  1 where the pixel belongs to the roof, 0 elsewhere
//	dsm          1 band, float32: digital surface model, meters above sea level
//	rgb          3 bands, uint8: aerial photo, red/green/blue
//	annualFlux   1 band, float32: yearly sunlight, kWh/kW/year
//	monthlyFlux  12 bands, float32: per-month sunlight, kWh/kW/month
//	hourlyShade  12 files (one per month), 24 bands each (one per hour of day)
//
// # Hourly Shade Encoding
//
// Each hourlyShade pixel is a 32-bit word per hour of day. Bit (d-1) of the
// word is 1 when sunlight reaches the pixel at that hour on calendar day d
// (1..31) of the file's month, and 0 when the pixel is shadowed. [DayBit]
// extracts a single day's flag; [DecodeDayBits] expands a whole band into a
// binary grid suitable for rendering.
//
// # Calendar
//
// Showcase steps address hourly shade data by day-of-year (1..365). The
// conversion to (month, day-of-month) uses fixed non-leap month lengths;
// values past 365 clamp to December 31. See [DayOfYearToMonthDay].
//
// # Layers
//
// A [Layer] is the displayable result of decoding and rendering one bundle
// entry: one RGBA frame for static layers, 12 frames for monthlyFlux, and 16
// or 24 frames for hourlyShade depending on daylight-only mode. Frame counts
// are validated at construction; a mismatch is a decode/render bug, never
// silently truncated.
package domain
