package layout

// This file holds unit conversion helpers. Layout math runs in millimeters;
// font sizes cross the renderer boundary in points.

// Conversion constants between pt, mm and inches.
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm
	InToMm = 25.4
)
