// Package domain models historical reanalysis samples and the comfort
// analysis derived from them.
//
// # Data Source
//
// Observations come from NASA MERRA-2, collection M2T1NXSLV version 5.12.4
// (hourly, single-level atmospheric diagnostics on a 0.5° x 0.625° grid).
// Granules are located through the NASA Common Metadata Repository (CMR) and
// subset through the OPeNDAP (Hyrax DAP4) endpoint listed in each granule's
// related URLs. One granule holds one UTC day of 24 hourly samples.
//
// # MERRA-2 Conventions
//
// Variables used:
//
//	T2M   2-meter air temperature, K
//	QV2M  2-meter specific humidity, kg kg-1
//	TQL   total precipitable liquid water, kg m-2
//	TQV   total precipitable water vapor, kg m-2
//
// Time axis:
//
//	CF units such as "minutes since 2023-01-01 00:30:00". Hourly samples are
//	stamped at the half hour, so a sample at 12:30 UTC belongs to hour 12.
//	All hour-of-day and calendar-date grouping is done in UTC.
//
// Missing values:
//
//	Samples equal to a variable's _FillValue or missing_value (1e15 for
//	MERRA-2) are decoded as NaN and skipped by every aggregate.
//
// # Derived Quantities
//
// Relative humidity is computed from specific humidity at a fixed reference
// pressure (default 1000 hPa) using the Bolton saturation vapor pressure form
// and clipped to [0, 100]. The liquid fraction 100*TQL/(TQV+TQL) is used as a
// rain proxy: a day whose mean liquid fraction exceeds the rain threshold
// (default 0.3 percent) counts as rainy.
//
// # Comfort
//
// The heat index uses the Rothfusz regression (with Celsius inputs) at or
// above 26 °C and simple linear humidity corrections below that. The heat
// index is then bucketed into a fixed label/score table; see [ScoreComfort].
//
// # Unknown values
//
// NaN results are kept as NaN in memory and encoded as JSON null through
// [Number].
package domain
