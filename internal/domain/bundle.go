package domain

import "fmt"

// RasterURLs is the provider-supplied bundle of raster source locators for
// one building. HourlyShadeURLs carries one file per calendar month.
type RasterURLs struct {
	MaskURL         string   `json:"maskUrl"`
	DSMURL          string   `json:"dsmUrl"`
	RGBURL          string   `json:"rgbUrl"`
	AnnualFluxURL   string   `json:"annualFluxUrl"`
	MonthlyFluxURL  string   `json:"monthlyFluxUrl"`
	HourlyShadeURLs []string `json:"hourlyShadeUrls"`
}

// HourlyShadeURL returns the shade file for a month (1..12).
func (u RasterURLs) HourlyShadeURL(month int) (string, error) {
	if month < 1 || month > len(u.HourlyShadeURLs) {
		return "", fmt.Errorf("no hourly shade source for month %d (%d available)", month, len(u.HourlyShadeURLs))
	}
	return u.HourlyShadeURLs[month-1], nil
}
