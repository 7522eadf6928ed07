package airquality

import "math"

// breakpoint is one band of the concentration to index mapping.
type breakpoint struct {
	concLo, concHi   float64
	indexLo, indexHi int
}

// Concentration bands per pollutant on the US EPA scale.
var breakpoints = map[Pollutant][]breakpoint{
	PollutantPM25: {
		{0, 12, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
	},
	PollutantPM10: {
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
	},
	PollutantO3: {
		{0, 0.054, 0, 50},
		{0.055, 0.070, 51, 100},
		{0.071, 0.085, 101, 150},
	},
	PollutantNO2: {
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
	},
	PollutantSO2: {
		{0, 35, 0, 50},
		{36, 75, 51, 100},
		{76, 185, 101, 150},
	},
	PollutantCO: {
		{0, 4.4, 0, 50},
		{4.5, 9.4, 51, 100},
		{9.5, 12.4, 101, 150},
	},
}

// SubIndex converts a pollutant concentration into its sub-index by linear
// interpolation within the matching band. Concentrations above the last band
// saturate at that band's upper index; concentrations falling between two
// bands also saturate. ok is false for pollutants without a band table.
func SubIndex(p Pollutant, concentration float64) (value int, ok bool) {
	bands, found := breakpoints[p]
	if !found || concentration < 0 {
		return 0, false
	}

	for _, b := range bands {
		if concentration >= b.concLo && concentration <= b.concHi {
			span := float64(b.indexHi-b.indexLo) / (b.concHi - b.concLo)
			return int(math.Round(span*(concentration-b.concLo))) + b.indexLo, true
		}
	}

	return bands[len(bands)-1].indexHi, true
}

// SubIndices computes sub-indices for every pollutant in the reading that has a band table.
func (r *Reading) SubIndices() map[Pollutant]int {
	out := make(map[Pollutant]int)
	for p, c := range r.Pollutants {
		if v, ok := SubIndex(p, c); ok {
			out[p] = v
		}
	}
	return out
}
