package catalog

import "fmt"

func padded(from, to, step int) []string {
	var out []string
	for i := from; i < to; i += step {
		out = append(out, fmt.Sprintf("%02d", i))
	}
	return out
}

var fullDisk = &RasterInfo{
	CadenceFullDisk:   "1 hour",
	ResolutionNominal: "2 km",
	ShapeFullDisk:     [2]int{5424, 5424},
}

// DefaultDefinition is the built-in GOES-R catalog.
func DefaultDefinition() Definition {
	return Definition{
		Satellites: []Satellite{
			{ID: "16", Bucket: "noaa-goes16", MirrorBucket: "gcp-public-data-goes-16", DisplayName: "GOES16", Aliases: []string{"g16", "goes16", "goes16-east"}, Position: "east", Status: "standby", FirstDate: "2016-12-18"},
			{ID: "17", Bucket: "noaa-goes17", MirrorBucket: "gcp-public-data-goes-17", DisplayName: "GOES17", Aliases: []string{"g17", "goes17", "goes17-west"}, Position: "west", Status: "standby", FirstDate: "2018-02-12"},
			{ID: "18", Bucket: "noaa-goes18", MirrorBucket: "gcp-public-data-goes-18", DisplayName: "GOES18", Aliases: []string{"g18", "goes18", "goes18-west"}, Position: "west", Status: "active", FirstDate: "2022-03-01"},
			{ID: "19", Bucket: "noaa-goes19", MirrorBucket: "gcp-public-data-goes-19", DisplayName: "GOES19", Aliases: []string{"g19", "goes19", "goes19-east"}, Position: "east", Status: "active", FirstDate: "2024-06-25"},
		},
		Transitions: []Transition{
			{Position: "east", From: "16", To: "19", Date: "2025-03-31"},
			{Position: "west", From: "17", To: "18", Date: "2023-01-04"},
		},
		Products: []Product{
			{
				ID:             "ABI-L2-LSTF",
				FullName:       "Land Surface Temperature",
				Description:    "Land Surface Temperature product (Full Disk)",
				Level:          "L2",
				FileNamePrefix: "OR_ABI-L2-LSTF-M6_G",
				Units:          "Kelvin",
				TypicalRange:   "-100 C to +100 C",
				MainUse:        "Drought monitoring, vegetation thermal stress",
				Notes:          "Values outside disk are fill (NaN).",
				ExpectedCount:  24,
				TimeLapse:      "01hour",
				Kind:           Raster,
				Raster:         fullDisk,
				Slots:          Slots{Hours: padded(0, 24, 1)},
			},
			{
				ID:             "ABI-L2-MCMIPF",
				FullName:       "Cloud and Moisture Imagery",
				Description:    "Multiband imagery product (Full Disk)",
				Level:          "L2",
				FileNamePrefix: "OR_ABI-L2-MCMIPF-M6_G",
				Units:          "Reflectance/Brightness Temp",
				TypicalRange:   "0-100% / 0-400K",
				MainUse:        "General forecasting and imagery",
				Notes:          "Full Disk, contains all ABI bands",
				ExpectedCount:  144,
				TimeLapse:      "10min",
				Kind:           Raster,
				Raster:         fullDisk,
				Slots:          Slots{Hours: padded(0, 24, 1), Minutes: padded(0, 60, 10)},
			},
			{
				ID:             "ABI-L2-FDCF",
				FullName:       "Fire Detection and Characterization",
				Description:    "Fire hot spot detection and characterization (Full Disk)",
				Level:          "L2",
				FileNamePrefix: "OR_ABI-L2-FDCF-M6_G",
				Units:          "Kelvin (Fire Temperature), Megawatts (Fire Power)",
				TypicalRange:   "300K - 1200K",
				MainUse:        "Wildfire detection and monitoring",
				Notes:          "Includes Fire Temperature, Area, and Power (FRP).",
				ExpectedCount:  144,
				TimeLapse:      "10min",
				Kind:           Raster,
				Raster:         fullDisk,
				Slots:          Slots{Hours: padded(0, 24, 1), Minutes: padded(0, 60, 10)},
			},
			{
				ID:             "GLM-L2-LCFA",
				FullName:       "Lightning Detection",
				Description:    "Geostationary Lightning Mapper events",
				Level:          "L2",
				FileNamePrefix: "OR_GLM-L2-LCFA_G",
				Units:          "Events/Flashes",
				TypicalRange:   "N/A",
				MainUse:        "Storm intensification monitoring",
				Notes:          "Vectorial data",
				ExpectedCount:  4320,
				TimeLapse:      "20sec",
				Kind:           Vector,
				Vector: &VectorInfo{
					Cadence:           "20 seconds",
					CadenceGrouped:    "1 min",
					ResolutionSpatial: "8 km",
				},
				Slots: Slots{Hours: padded(0, 24, 1), Minutes: padded(0, 60, 1), Seconds: padded(0, 60, 20)},
			},
		},
	}
}

// Default returns the built-in catalog. It panics if the built-in
// definition fails validation.
func Default() *Catalog {
	c, err := New(DefaultDefinition())
	if err != nil {
		panic(err)
	}
	return c
}
